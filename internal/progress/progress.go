// Package progress carries pipeline progress events from the orchestrator to
// the CLI, the SSE stream and websocket clients.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/castcheck/internal/logger"
)

// Stage labels an event.
type Stage string

const (
	StageStarted       Stage = "started"
	StageNode          Stage = "node"
	StageToolStarted   Stage = "tool_started"
	StageToolCompleted Stage = "tool_completed"
	StageIteration     Stage = "iteration"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
)

// Event describes one step of an analysis run.
type Event struct {
	// Stage is serialized as "type" to match the stream clients.
	Stage Stage `json:"type"`
	// Node names the pipeline node or specialist that produced the event.
	Node    string `json:"node,omitempty"`
	Message string `json:"message,omitempty"`
	Tool    string `json:"tool,omitempty"`
	// Result holds the node output, or the final output on complete.
	Result interface{} `json:"result,omitempty"`
	// Traceback is only set on error events in debug mode.
	Traceback string    `json:"traceback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether no events follow this one.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

const terminalWait = 5 * time.Second

// Callback receives progress events.
type Callback func(Event) error

// Dispatch stamps the event and sends it if the callback is set. Sink
// errors are logged and swallowed; a gone client never aborts a run.
func Dispatch(ctx context.Context, cb Callback, ev Event) {
	if cb == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := cb(ev); err != nil {
		logger.FromContext(ctx).Warn("progress sink rejected %s event: %v", ev.Stage, err)
	}
}

// Multi fans an event out to every non-nil callback.
func Multi(cbs ...Callback) Callback {
	return func(ev Event) error {
		var firstErr error
		for _, cb := range cbs {
			if cb == nil {
				continue
			}
			if err := cb(ev); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}

// Emitter buffers events for a single consumer. Emit never blocks: when the
// buffer is full, the event is dropped with a warning. Terminal events wait
// up to terminalWait for room.
type Emitter struct {
	log     *logger.Logger
	ch      chan Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewEmitter creates an emitter with the given buffer size. Drops are logged
// with the run of ctx.
func NewEmitter(ctx context.Context, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{log: logger.FromContext(ctx), ch: make(chan Event, buffer)}
}

// Emit queues ev. It is safe to call after Close.
func (e *Emitter) Emit(ev Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if ev.Terminal() {
		select {
		case e.ch <- ev:
			return nil
		case <-time.After(terminalWait):
		}
	} else {
		select {
		case e.ch <- ev:
			return nil
		default:
		}
	}

	n := e.dropped.Add(1)
	e.log.Warn("progress buffer full, dropped %s event (%d dropped so far)", ev.Stage, n)
	return nil
}

// Callback returns Emit as a Callback.
func (e *Emitter) Callback() Callback {
	return e.Emit
}

// Events returns the receive side. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Dropped returns the number of events discarded so far.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops accepting events and closes the channel.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
