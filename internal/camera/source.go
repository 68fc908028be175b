// Package camera mediates access to a single camera device and turns its
// frames into encoded snapshots.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// Source opens a camera device. Implementations must return a *DeviceError
// (or one of the Err* sentinels) when the device cannot be opened.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open device handle.
type Stream interface {
	// Frame returns the current frame, or ErrNoFrame if nothing was decoded yet.
	Frame(ctx context.Context) (image.Image, error)
	// Close stops the device. Calling it more than once is allowed.
	Close() error
}

// NewSource builds a Source from a CAMERA_SOURCE value:
//
//	dir:/path/to/frames       replay still images from a directory
//	http://camera/snapshot    poll an IP camera snapshot endpoint
func NewSource(src string) (Source, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, errors.New("camera source is not configured (set CAMERA_SOURCE)")
	case strings.HasPrefix(src, "dir:"):
		path := strings.TrimPrefix(src, "dir:")
		if path == "" {
			return nil, errors.New("dir camera source needs a path")
		}
		return NewDirSource(path), nil
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return NewHTTPSource(src, nil), nil
	}
	return nil, fmt.Errorf("unsupported camera source %q", src)
}
