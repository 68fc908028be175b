package camera

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Snapshot before the device has produced a frame.
// It is recoverable: callers should wait and retry.
var ErrNotReady = errors.New("video not ready")

// ErrNoFrame is returned by a Stream that has not decoded anything yet.
var ErrNoFrame = errors.New("no frame available")

// Device acquisition failures.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera found")
	ErrDeviceBusy       = errors.New("camera is in use")
)

// Cause classifies why a camera could not be acquired.
type Cause int

const (
	CauseUnknown Cause = iota
	CausePermission
	CauseNotFound
	CauseBusy
)

func (c Cause) String() string {
	switch c {
	case CausePermission:
		return "permission"
	case CauseNotFound:
		return "not_found"
	case CauseBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// DeviceError wraps a source failure with its classified cause.
type DeviceError struct {
	Cause Cause
	Err   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera error (%s): %v", e.Cause, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel belonging to the cause.
func (e *DeviceError) Is(target error) bool {
	switch e.Cause {
	case CausePermission:
		return target == ErrPermissionDenied
	case CauseNotFound:
		return target == ErrNoDevice
	case CauseBusy:
		return target == ErrDeviceBusy
	}
	return false
}

func deviceErr(cause Cause, err error) error {
	return &DeviceError{Cause: cause, Err: err}
}

// Classify returns the cause of an acquisition error.
func Classify(err error) Cause {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Cause
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CausePermission
	case errors.Is(err, ErrNoDevice):
		return CauseNotFound
	case errors.Is(err, ErrDeviceBusy):
		return CauseBusy
	}
	return CauseUnknown
}

// Diagnostic returns the operator-facing message for an acquisition error.
func Diagnostic(err error) string {
	const prefix = "Camera error: "
	switch Classify(err) {
	case CausePermission:
		return prefix + "Please allow camera permissions."
	case CauseNotFound:
		return prefix + "No camera found."
	case CauseBusy:
		return prefix + "Camera is in use by another application."
	}
	if err == nil {
		return prefix + "Unknown error."
	}
	var de *DeviceError
	if errors.As(err, &de) && de.Err != nil {
		return prefix + de.Err.Error()
	}
	return prefix + err.Error()
}
