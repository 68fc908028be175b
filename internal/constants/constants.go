// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Camera constants
const (
	// MaxFrameSize is the largest still image accepted from a snapshot URL (20MB)
	MaxFrameSize = 20 << 20

	// CameraRequestTimeout is the default timeout for one snapshot URL fetch
	CameraRequestTimeout = 10 * time.Second
)

// Backend constants
const (
	// DefaultBackendTimeout is used when no timeout is configured.
	// Training a section can take close to a minute.
	DefaultBackendTimeout = 60 * time.Second

	// MaxErrorDetailLength caps non-JSON error bodies (HTML error pages and the like)
	MaxErrorDetailLength = 300
)

// Recognition constants
const (
	// RecognitionTickTimeout bounds one capture + recognize round-trip so a
	// hung request cannot hold the single tick slot forever
	RecognitionTickTimeout = 30 * time.Second

	// OverlayJPEGQuality is the quality of the annotated preview frame
	OverlayJPEGQuality = 85
)
