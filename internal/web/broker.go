package web

import (
	"context"
	"sync"
	"time"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/pipeline"
	"github.com/codefionn/castcheck/internal/progress"
)

const eventBuffer = 128

// RuntimeBuilder creates the runtime for one request. It has the shape of
// pipeline.RuntimeFactory.Create.
type RuntimeBuilder func(ctx context.Context, cfg *config.Config, cb progress.Callback) (*agents.Runtime, error)

// Broker starts analysis runs and fans their events out to the requesting
// stream and to every websocket client.
type Broker struct {
	build  RuntimeBuilder
	hub    *Hub
	active sync.WaitGroup
}

// NewBroker creates a broker. hub may be nil.
func NewBroker(build RuntimeBuilder, hub *Hub) *Broker {
	return &Broker{build: build, hub: hub}
}

// Start launches req in the background and returns its events. The channel
// is closed once the run has finished; the last event is complete or error.
// Cancelling ctx cancels the run.
func (b *Broker) Start(ctx context.Context, cfg *config.Config, req pipeline.Request) (runID string, events <-chan progress.Event) {
	runID = logger.NewRunID()
	ctx = logger.WithRun(ctx, runID)

	emitter := progress.NewEmitter(ctx, eventBuffer)
	cb := progress.Multi(emitter.Callback(), b.broadcaster(runID))

	b.active.Add(1)
	go func() {
		defer b.active.Done()
		defer emitter.Close()

		rt, err := b.build(ctx, cfg, cb)
		if err != nil {
			logger.FromContext(ctx).Error("failed to set up analysis: %v", err)
			progress.Dispatch(ctx, cb, progress.Event{Stage: progress.StageError, Node: "setup", Message: err.Error()})
			return
		}
		if _, err := (&pipeline.Runner{Runtime: rt}).Run(ctx, req); err != nil {
			logger.FromContext(ctx).Debug("run ended with error: %v", err)
		}
	}()
	return runID, emitter.Events()
}

// Wait blocks until every started run has finished.
func (b *Broker) Wait() {
	b.active.Wait()
}

func (b *Broker) broadcaster(runID string) progress.Callback {
	if b.hub == nil {
		return nil
	}
	return func(ev progress.Event) error {
		b.hub.Broadcast(&WebMessage{Type: MessageTypeProgress, RunID: runID, Event: &ev, Timestamp: time.Now()})
		return nil
	}
}
