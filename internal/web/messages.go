package web

import (
	"time"

	"github.com/codefionn/castcheck/internal/progress"
)

// Websocket message types
const (
	MessageTypeHello    = "hello"
	MessageTypeProgress = "progress"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeError    = "error"
)

// WebMessage is a websocket frame.
type WebMessage struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Version   string          `json:"version,omitempty"`
	Event     *progress.Event `json:"event,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// analyzeOptions are the non-transcript fields of an analysis request.
type analyzeOptions struct {
	Mode        string `json:"mode"`
	CriticLoops int    `json:"critic_loops"`
	Debug       bool   `json:"debug"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-streamed failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
