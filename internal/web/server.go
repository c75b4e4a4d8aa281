// Package web serves the analysis HTTP API: streamed analyses over SSE,
// bundled samples, health, and a websocket feed of all run progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/pipeline"
	"github.com/codefionn/castcheck/internal/transcript"
)

// Server is the HTTP API.
type Server struct {
	router     *httprouter.Router
	httpServer *http.Server
	store      *config.Store
	broker     *Broker
	hub        *Hub
	upgrader   websocket.Upgrader
	hubOnce    sync.Once
	debug      bool
}

// NewServer creates a server. Every request analyzes with a snapshot of
// store, so reloads never affect runs in flight.
func NewServer(store *config.Store, build RuntimeBuilder, debug bool) *Server {
	hub := NewHub()
	s := &Server{
		router: httprouter.New(),
		store:  store,
		broker: NewBroker(build, hub),
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		debug: debug,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/samples", s.handleSamples)
	s.router.GET("/api/samples/:id", s.handleSample)
	s.router.POST("/api/analyze", s.handleAnalyze)
	s.router.POST("/api/analyze/file", s.handleAnalyzeFile)
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", h.Get("Allow"))
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		logger.Error("panic serving %s %s: %v", r.Method, r.URL.Path, v)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Handler returns the API with permissive CORS headers.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		s.router.ServeHTTP(w, r)
	})
}

// Start runs the websocket hub. Serve calls it; tests serving Handler
// through httptest call it directly.
func (s *Server) Start() {
	s.hubOnce.Do(func() { go s.hub.Run() })
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.Start()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: consts.Timeout30Seconds,
		ErrorLog:          logger.NewStdLogger(logger.Global(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()
	logger.Info("castcheck API listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.hub.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop disconnects websocket clients and waits for running analyses.
func (s *Server) Stop() error {
	logger.Info("stopping API server")
	s.hub.Stop()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout30Seconds)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	s.broker.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: consts.Version})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	samples, err := transcript.Samples()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	in, err := transcript.LoadSample(ps.ByName("id"))
	switch {
	case errors.Is(err, transcript.ErrSampleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, in)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, consts.MaxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	var in transcript.Input
	var opts analyzeOptions
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := json.Unmarshal(body, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.stream(w, r, &in, opts)
}

func (s *Server) handleAnalyzeFile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, consts.MaxUploadSize+consts.BufferSize1MB)
	if err := r.ParseMultipartForm(consts.BufferSize1MB * 32); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	in, err := transcript.ReadFile(header.Filename, file)
	if err != nil {
		var inputErr *transcript.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusBadRequest, inputErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := analyzeOptions{Mode: r.FormValue("mode")}
	if v := r.FormValue("critic_loops"); v != "" {
		if opts.CriticLoops, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "critic_loops must be an integer")
			return
		}
	}
	opts.Debug, _ = strconv.ParseBool(r.FormValue("debug"))
	s.stream(w, r, in, opts)
}

// stream runs the analysis and writes its events as server-sent events. A
// client disconnect cancels the run.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, in *transcript.Input, opts analyzeOptions) {
	mode, err := pipeline.ParseMode(opts.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.CriticLoops < 0 {
		writeError(w, http.StatusBadRequest, "critic_loops must not be negative")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	cfg := s.store.Snapshot()
	ctx, cancel := context.WithTimeout(r.Context(), cfg.Server.RequestTimeout())
	defer cancel()

	runID, events := s.broker.Start(ctx, cfg, pipeline.Request{
		Transcript:  in.Normalize(),
		Metadata:    in.Metadata,
		Mode:        mode,
		CriticLoops: opts.CriticLoops,
		Debug:       opts.Debug || s.debug,
	})
	log := logger.FromContext(logger.WithRun(ctx, runID))

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Run-ID", runID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	delay := cfg.App.StreamDelay()
	gone := false
	for ev := range events {
		if gone {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error("failed to encode %s event: %v", ev.Stage, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			log.Warn("client went away, cancelling run: %v", err)
			gone = true
			cancel()
			continue
		}
		flusher.Flush()

		if delay > 0 && !ev.Terminal() {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade websocket: %v", err)
		return
	}

	client := NewClient(s.hub, conn, r.URL.Query().Get("run_id"), s.debug)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
