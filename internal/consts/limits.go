package consts

import "time"

// Buffer sizes
const (
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
	// MaxUploadSize caps transcript uploads accepted by the HTTP API
	MaxUploadSize = 10 * BufferSize1MB
)

// LLM defaults, mirrored by config.DefaultConfig
const (
	// DefaultTemperature is used when a model entry leaves temperature unset
	DefaultTemperature = 0.3
	// DefaultMaxTokens is the default maximum tokens for a model response
	DefaultMaxTokens = 2000
	// DefaultMaxRetries is the validation retry budget per model binding
	DefaultMaxRetries = 3
	// DefaultSupervisorIterations caps the supervisor's tool loop
	DefaultSupervisorIterations = 15
	// DefaultFactCheckIterations caps the fact checker's tool loop
	DefaultFactCheckIterations = 10
	// DefaultCriticLoops is the default number of fact-check/critique rounds
	DefaultCriticLoops = 2
	// DefaultStreamDelay paces events on the SSE stream
	DefaultStreamDelay = 100 * time.Millisecond
)

// Extraction limits
const (
	// PreviewLength is the number of characters kept in extraction diagnostics
	PreviewLength = 500
	// MinTranscriptLength is the shortest transcript accepted for analysis
	MinTranscriptLength = 100
)

// Timeouts for various operations
const (
	// Timeout3Seconds is the default URL reachability check timeout
	Timeout3Seconds = 3 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
	// Timeout2Minutes is a 2 minute timeout
	Timeout2Minutes = 2 * time.Minute
	// Timeout10Minutes is a 10 minute timeout
	Timeout10Minutes = 10 * time.Minute
)

// Version is reported by the CLI and the health endpoint.
const Version = "0.4.0"
