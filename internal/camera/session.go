package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// errReleased is returned by Acquire when Release ran while the device was opening.
var errReleased = errors.New("camera released during acquisition")

// Session owns at most one open Stream. Acquire always releases the previous
// stream first, so a Session never holds two device handles.
type Session struct {
	source   Source
	warmUp   time.Duration
	maxWidth int

	acquireMu sync.Mutex // serializes Acquire

	mu        sync.Mutex
	stream    Stream
	ready     bool
	capturing bool
	gen       uint64
	hooks     []func()
}

// Option configures a Session.
type Option func(*Session)

// WithWarmUp sets the stabilization delay between opening the device and
// marking the session ready.
func WithWarmUp(d time.Duration) Option {
	return func(s *Session) { s.warmUp = d }
}

// WithMaxWidth downscales frames wider than n pixels before encoding.
func WithMaxWidth(n int) Option {
	return func(s *Session) { s.maxWidth = n }
}

// NewSession creates an idle capture session for the given source.
func NewSession(source Source, opts ...Option) *Session {
	s := &Session{source: source}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State is a point-in-time view of the session flags.
type State struct {
	Ready     bool `json:"ready"`
	Capturing bool `json:"capturing"`
}

// State returns the current flags.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Ready: s.ready, Capturing: s.capturing}
}

// Ready reports whether snapshots can be taken.
func (s *Session) Ready() bool {
	return s.State().Ready
}

// Capturing reports whether a device is open or being opened.
func (s *Session) Capturing() bool {
	return s.State().Capturing
}

// OnRelease registers a hook that runs every time a held device is released.
// Hooks run outside the session lock and must not call Acquire.
func (s *Session) OnRelease(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Acquire opens the device. Any previously held device is released first. On
// failure the session is left not capturing and not ready.
func (s *Session) Acquire(ctx context.Context) error {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.Release()

	s.mu.Lock()
	s.capturing = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.source.Open(ctx)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.capturing = false
			s.ready = false
		}
		s.mu.Unlock()
		if Classify(err) == CauseUnknown {
			var de *DeviceError
			if !errors.As(err, &de) {
				err = deviceErr(CauseUnknown, err)
			}
		}
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Released while opening; do not keep the handle.
		s.mu.Unlock()
		stream.Close()
		return errReleased
	}
	s.stream = stream
	s.mu.Unlock()

	if s.warmUp > 0 {
		timer := time.NewTimer(s.warmUp)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			s.releaseGen(gen)
			return fmt.Errorf("camera warm-up interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return errReleased
	}
	s.ready = true
	return nil
}

// Release stops the device and resets the flags. Hooks registered with
// OnRelease run when a device was actually held. Calling Release on an idle
// session does nothing.
func (s *Session) Release() {
	s.mu.Lock()
	stream := s.stream
	wasActive := stream != nil || s.capturing
	s.stream = nil
	s.ready = false
	s.capturing = false
	s.gen++
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if wasActive {
		for _, fn := range hooks {
			fn()
		}
	}
}

// releaseGen releases only if gen is still the current acquisition.
func (s *Session) releaseGen(gen uint64) {
	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if current {
		s.Release()
	}
}

// Snapshot encodes the current frame. It returns ErrNotReady when the session
// is not ready or the device has not decoded a frame yet. The stream itself is
// left untouched.
func (s *Session) Snapshot(ctx context.Context, quality int) (Image, error) {
	s.mu.Lock()
	stream, ready := s.stream, s.ready
	s.mu.Unlock()

	if !ready || stream == nil {
		return Image{}, ErrNotReady
	}

	frame, err := stream.Frame(ctx)
	if errors.Is(err, ErrNoFrame) {
		return Image{}, ErrNotReady
	}
	if err != nil {
		return Image{}, fmt.Errorf("could not read frame: %w", err)
	}

	img, err := Encode(frame, quality, s.maxWidth)
	if errors.Is(err, ErrNoFrame) {
		return Image{}, ErrNotReady
	}
	return img, err
}

// Scope acquires the device, runs fn and releases the device on every exit path.
func (s *Session) Scope(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		s.Release()
		return err
	}
	defer s.Release()
	return fn(ctx)
}
