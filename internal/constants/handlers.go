package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// SSEKeepAliveInterval is how often an idle event stream gets a comment line
	SSEKeepAliveInterval = 15 * time.Second
)

// Request constants
const (
	// MaxJSONBodySize is the maximum accepted JSON request body (1MB)
	MaxJSONBodySize = 1 << 20

	// RequestTimeout bounds ordinary kiosk API requests; the event stream is exempt
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on shutdown
	ShutdownTimeout = 10 * time.Second
)
