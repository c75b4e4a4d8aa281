// Package pprof exposes profiling for long analyses: an HTTP endpoint for
// the API server and CPU/heap profile files for single CLI runs.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"

	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
)

// Config selects what to profile. Empty fields are disabled.
type Config struct {
	HTTPAddr    string // e.g. "localhost:6060"
	CPUProfile  string // written from Start to Stop
	HeapProfile string // written at Stop
}

// Enabled reports whether any profiling is configured.
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != ""
}

// Handler manages one profiling session.
type Handler struct {
	config  Config
	server  *http.Server
	addr    net.Addr
	cpuFile *os.File

	mu      sync.Mutex
	stopped bool
}

// NewHandler creates a handler for config.
func NewHandler(config Config) *Handler {
	return &Handler{config: config}
}

// Start begins CPU profiling and serves /debug/pprof/ if configured.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		f, err := create(h.config.CPUProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
	}

	if h.config.HTTPAddr != "" {
		ln, err := net.Listen("tcp", h.config.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to bind pprof server: %w", err)
		}
		h.addr = ln.Addr()
		h.server = &http.Server{Handler: Mux(), ReadHeaderTimeout: consts.Timeout30Seconds}
		go func() {
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("pprof server error: %v", err)
			}
		}()
		logger.Info("pprof listening on http://%s/debug/pprof/", h.addr)
	}
	return nil
}

// Addr returns the bound pprof address, or nil without an HTTP endpoint.
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Stop ends CPU profiling, writes the heap profile and shuts the endpoint
// down. Later calls do nothing.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true

	var errs []error
	if h.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := h.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		h.cpuFile = nil
	}

	if h.config.HeapProfile != "" {
		if f, err := create(h.config.HeapProfile); err != nil {
			errs = append(errs, err)
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil {
				errs = append(errs, fmt.Errorf("failed to write heap profile: %w", err))
			}
			f.Close()
		}
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
		h.server = nil
	}
	return errors.Join(errs...)
}

// Mux returns the /debug/pprof/ handlers.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	return mux
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile file: %w", err)
	}
	return f, nil
}
