// Package recognition drives periodic face recognition while an attendance
// session is active.
//
// The loop is Idle or Polling. While polling, a ticker fires every interval
// and each tick captures one frame, submits it with the session's section and
// semester, and records the match. Only one tick per run is in flight at a
// time: a tick that fires while the previous request is outstanding is
// dropped.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/overlay"
)

var (
	ErrNoSession = errors.New("no attendance session")
	ErrActive    = errors.New("recognition is already running")
)

// Camera is the capture session the loop reads frames from.
type Camera interface {
	Ready() bool
	Acquire(ctx context.Context) error
	Snapshot(ctx context.Context, quality int) (camera.Image, error)
	Release()
	OnRelease(fn func())
}

// Recognizer submits a frame for recognition and attendance marking.
type Recognizer interface {
	RecognizeAndMark(ctx context.Context, img camera.Image, section, year string) (*backend.Recognition, error)
}

// Notifier shows transient messages to the operator.
type Notifier interface {
	Info(msg string) notify.Notification
	Success(msg string) notify.Notification
}

// State of the loop.
type State int

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Result is the outcome of the latest matching tick.
type Result struct {
	Matched    bool      `json:"matched"`
	Name       string    `json:"name"`
	Identifier string    `json:"identifier"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

// Label converts the result to overlay text.
func (r Result) Label() overlay.Label {
	return overlay.Label{
		Name:       r.Name,
		Identifier: r.Identifier,
		Confidence: r.Confidence,
		Status:     r.Status,
	}
}

// Stats counts ticks since the loop was created.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Dropped  uint64 `json:"dropped"`
	Failures uint64 `json:"failures"`
	Matches  uint64 `json:"matches"`
}

// pollRun is one Idle to Polling to Idle cycle. Its slot is private so a
// request left over from a stopped run never holds up the next one.
type pollRun struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// Loop is the recognition poll loop.
type Loop struct {
	cam      Camera
	api      Recognizer
	notifier Notifier
	logger   *slog.Logger
	interval time.Duration
	quality  int
	onResult func(Result)

	// emitMu orders a tick's accept step against halt, so no match is
	// announced once the run has been torn down.
	emitMu sync.Mutex

	mu      sync.Mutex
	state   State
	run     *pollRun
	session *backend.AttendanceSession
	result  *Result
	frame   camera.Image

	wg sync.WaitGroup

	ticks    atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
	matches  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithQuality sets the JPEG quality of submitted frames.
func WithQuality(q int) Option {
	return func(l *Loop) { l.quality = q }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithNotifier sets where start, stop and match messages go.
func WithNotifier(n Notifier) Option {
	return func(l *Loop) { l.notifier = n }
}

// OnResult registers a callback for every accepted match.
func OnResult(fn func(Result)) Option {
	return func(l *Loop) { l.onResult = fn }
}

// NewLoop creates an idle loop. Releasing cam stops the loop.
func NewLoop(cam Camera, api Recognizer, opts ...Option) *Loop {
	l := &Loop{
		cam:      cam,
		api:      api,
		logger:   slog.Default(),
		interval: 3 * time.Second,
		quality:  80,
	}
	for _, opt := range opts {
		opt(l)
	}
	cam.OnRelease(func() {
		if _, ok := l.halt(); ok {
			l.logger.Info("recognition stopped by camera release")
			l.info("Recognition stopped")
		}
	})
	return l
}

// Start moves the loop from Idle to Polling. The camera is acquired first if
// it is not ready. ctx bounds the acquisition only; the loop runs until Stop
// or until the camera is released.
func (l *Loop) Start(ctx context.Context, session *backend.AttendanceSession) error {
	if session == nil {
		return ErrNoSession
	}
	if l.Active() {
		return ErrActive
	}

	if !l.cam.Ready() {
		if err := l.cam.Acquire(ctx); err != nil {
			return fmt.Errorf("could not start camera: %w", err)
		}
	}

	l.mu.Lock()
	if l.state == StatePolling {
		l.mu.Unlock()
		return ErrActive
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &pollRun{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	s := *session
	l.state = StatePolling
	l.run = r
	l.session = &s
	l.result = nil
	l.frame = camera.Image{}
	l.mu.Unlock()

	go l.poll(r)

	l.logger.Info("recognition started",
		"session_id", s.ID,
		"section", s.Section,
		"semester", s.Semester,
		"interval", l.interval)
	l.success("Recognition started")
	return nil
}

// Stop cancels the timer, clears the result and session and releases the
// camera. Calling Stop on an idle loop only makes sure the camera is
// released. No tick starts after Stop returns.
func (l *Loop) Stop() {
	done, stopped := l.halt()
	l.cam.Release()
	if stopped {
		<-done
		l.logger.Info("recognition stopped")
		l.info("Recognition stopped")
	}
}

// halt performs the Polling to Idle transition and reports whether the loop
// was polling. The returned channel closes when the ticker goroutine exits.
// Ticks already in flight no longer match the active run and discard their
// responses. halt waits for a tick that is announcing a match to finish.
func (l *Loop) halt() (<-chan struct{}, bool) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StatePolling {
		return nil, false
	}
	r := l.run
	r.cancel()
	l.state = StateIdle
	l.run = nil
	l.session = nil
	l.result = nil
	l.frame = camera.Image{}
	return r.done, true
}

// Wait blocks until in-flight ticks have returned. Call it after Stop.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// State returns Idle or Polling.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active reports whether the loop is polling.
func (l *Loop) Active() bool {
	return l.State() == StatePolling
}

// Session returns a copy of the active attendance session.
func (l *Loop) Session() (backend.AttendanceSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return backend.AttendanceSession{}, false
	}
	return *l.session, true
}

// Result returns the latest match of the current run.
func (l *Loop) Result() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.result == nil {
		return Result{}, false
	}
	return *l.result, true
}

// Frame returns the last annotated frame of the current run.
func (l *Loop) Frame() (camera.Image, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, !l.frame.Empty()
}

// Stats returns the tick counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:    l.ticks.Load(),
		Dropped:  l.dropped.Load(),
		Failures: l.failures.Load(),
		Matches:  l.matches.Load(),
	}
}

func (l *Loop) poll(r *pollRun) {
	defer close(r.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.ctx.Err() != nil {
				return
			}
			l.fire(r)
		}
	}
}

// fire starts a tick unless one from the same run is still in flight.
func (l *Loop) fire(r *pollRun) bool {
	if !r.inFlight.CompareAndSwap(false, true) {
		l.dropped.Add(1)
		l.logger.Debug("recognition tick dropped, previous request still running")
		return false
	}
	l.wg.Go(func() {
		defer r.inFlight.Store(false)
		l.tick(r)
	})
	return true
}

func (l *Loop) tick(r *pollRun) {
	l.ticks.Add(1)

	l.mu.Lock()
	var session backend.AttendanceSession
	valid := l.run == r && l.session != nil
	if valid {
		session = *l.session
	}
	l.mu.Unlock()
	if !valid || !l.cam.Ready() {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, constants.RecognitionTickTimeout)
	defer cancel()

	img, err := l.cam.Snapshot(ctx, l.quality)
	if err != nil {
		if errors.Is(err, camera.ErrNotReady) {
			l.logger.Debug("camera not ready, skipping tick")
		} else {
			l.failures.Add(1)
			l.logger.Warn("could not capture frame", "error", err)
		}
		return
	}

	rec, err := l.api.RecognizeAndMark(ctx, img, session.Section, session.Semester)
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn("recognition request failed", "session_id", session.ID, "error", err)
		return
	}
	if !rec.Success {
		l.logger.Debug("no match", "message", rec.Message)
		return
	}

	result := Result{
		Matched:    true,
		Name:       rec.Name,
		Identifier: rec.ID,
		Confidence: rec.Confidence,
		Status:     rec.Status,
		At:         time.Now(),
	}

	frame, err := overlay.Annotate(img, result.Label(), constants.OverlayJPEGQuality)
	if err != nil {
		l.logger.Warn("could not draw overlay", "error", err)
		frame = camera.Image{}
	}

	if !l.accept(r, result, frame) {
		l.logger.Debug("discarding response from stopped run", "name", result.Name)
		return
	}

	l.matches.Add(1)
	l.logger.Info("attendance marked",
		"name", result.Name,
		"id", result.Identifier,
		"confidence", result.Confidence,
		"status", result.Status)
}

// accept records a match of run r and announces it. It holds emitMu for the
// whole step, so a concurrent Stop either lands before (and the match is
// dropped) or after the announcement. The notifier and onResult must not call
// Stop.
func (l *Loop) accept(r *pollRun, result Result, frame camera.Image) bool {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	l.mu.Lock()
	if l.run != r {
		l.mu.Unlock()
		return false
	}
	l.result = &result
	l.frame = frame
	l.mu.Unlock()

	l.success(fmt.Sprintf("%s marked %s", result.Name, result.Status))
	if l.onResult != nil {
		l.onResult(result)
	}
	return true
}

func (l *Loop) info(msg string) {
	if l.notifier != nil {
		l.notifier.Info(msg)
	}
}

func (l *Loop) success(msg string) {
	if l.notifier != nil {
		l.notifier.Success(msg)
	}
}
