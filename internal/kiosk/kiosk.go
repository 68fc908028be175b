// Package kiosk is the page state machine of the attendance kiosk.
//
// The kiosk is on exactly one Page at a time. Each page has its own context
// (the captured images on the capture page, the attendance inputs on the
// recognition page) which is created on entry and dropped on exit. Every
// exit path runs the same teardown, which stops the recognition loop and
// releases the camera.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

// Page is the screen the kiosk shows.
type Page string

const (
	PageHome        Page = "home"
	PageCapture     Page = "capture"
	PageRecognition Page = "recognition"
)

var (
	ErrWrongPage = errors.New("action is not available on this page")
	ErrBusy      = errors.New("another request is in progress")
	ErrClosed    = errors.New("kiosk is closed")

	// ErrInvalidInput marks attendance inputs that were left empty.
	ErrInvalidInput = errors.New("invalid input")
)

// Camera is the capture session used for registration and recognition.
type Camera interface {
	recognition.Camera
	State() camera.State
}

// Backend is the attendance API.
type Backend interface {
	registration.Submitter
	recognition.Recognizer
	ListStudents(ctx context.Context) ([]backend.Student, error)
	Train(ctx context.Context, section, year string) (*backend.TrainResult, error)
	StartSession(ctx context.Context, req backend.SessionRequest) (*backend.AttendanceSession, error)
}

// Settings are the kiosk's tunables.
type Settings struct {
	MinImages           int
	MaxImages           int
	CaptureQuality      int
	RedirectDelay       time.Duration
	SessionDuration     int
	RecognitionInterval time.Duration
	RecognitionQuality  int
}

// SettingsFromConfig reads the kiosk settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MinImages:           cfg.Registration.MinImages,
		MaxImages:           cfg.Registration.MaxImages,
		CaptureQuality:      cfg.Registration.JPEGQuality,
		RedirectDelay:       cfg.Registration.RedirectDelay,
		SessionDuration:     cfg.Session.DurationMinutes,
		RecognitionInterval: cfg.Recognition.Interval,
		RecognitionQuality:  cfg.Recognition.JPEGQuality,
	}
}

// AttendanceForm holds the recognition page inputs.
type AttendanceForm struct {
	TeacherID string `json:"teacher_id"`
	SubjectID string `json:"subject_id"`
	Section   string `json:"section"`
	Semester  string `json:"semester"`
}

// HomeContext is the home page: the registration form draft and the last
// fetched student list.
type HomeContext struct {
	Form     registration.Form `json:"form"`
	Students []backend.Student `json:"students,omitempty"`
}

// CaptureContext is the capture page.
type CaptureContext struct {
	Form       registration.Form `json:"form"`
	Images     int               `json:"images"`
	MinImages  int               `json:"min_images"`
	MaxImages  int               `json:"max_images"`
	Remaining  int               `json:"remaining"`
	Camera     camera.State      `json:"camera"`
	Submitting bool              `json:"submitting"`
	Registered bool              `json:"registered"`
}

// RecognitionContext is the recognition page.
type RecognitionContext struct {
	Attendance AttendanceForm             `json:"attendance"`
	Training   bool                       `json:"training"`
	Trained    *backend.TrainResult       `json:"trained,omitempty"`
	Camera     camera.State               `json:"camera"`
	Polling    bool                       `json:"polling"`
	Session    *backend.AttendanceSession `json:"session,omitempty"`
	Result     *recognition.Result        `json:"result,omitempty"`
	Stats      recognition.Stats          `json:"stats"`
}

// State is a snapshot of the kiosk. Exactly one page context is set.
type State struct {
	Page         Page                 `json:"page"`
	Home         *HomeContext         `json:"home,omitempty"`
	Capture      *CaptureContext      `json:"capture,omitempty"`
	Recognition  *RecognitionContext  `json:"recognition,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

type captureContext struct {
	batch      *registration.Batch
	submitting bool
	registered bool
	redirect   *time.Timer
}

type recognitionContext struct {
	attendance AttendanceForm
	training   bool
	starting   bool
	trained    *backend.TrainResult
}

// Kiosk is the page state machine.
type Kiosk struct {
	settings  Settings
	cam       Camera
	api       Backend
	notes     *notify.Center
	loop      *recognition.Loop
	registrar *registration.Registrar
	logger    *slog.Logger

	mu          sync.Mutex
	page        Page
	epoch       uint64 // bumped on every page change
	closed      bool
	draft       registration.Form
	students    []backend.Student
	capture     *captureContext
	recognition *recognitionContext
}

// New creates a kiosk on the home page.
func New(settings Settings, cam Camera, api Backend, notes *notify.Center, logger *slog.Logger) *Kiosk {
	if logger == nil {
		logger = slog.Default()
	}
	k := &Kiosk{
		settings:  settings,
		cam:       cam,
		api:       api,
		notes:     notes,
		registrar: registration.NewRegistrar(api, settings.MinImages),
		logger:    logger,
		page:      PageHome,
	}
	k.loop = recognition.NewLoop(cam, api,
		recognition.WithInterval(settings.RecognitionInterval),
		recognition.WithQuality(settings.RecognitionQuality),
		recognition.WithLogger(logger.With("component", "recognition")),
		recognition.WithNotifier(notes),
		recognition.OnResult(func(r recognition.Result) {
			notes.Publish(notify.Event{Type: notify.EventRecognition, Data: r})
		}),
	)
	return k
}

// Page returns the current page.
func (k *Kiosk) Page() Page {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.page
}

// State returns a snapshot of the current page and its context.
func (k *Kiosk) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stateLocked()
}

func (k *Kiosk) stateLocked() State {
	s := State{Page: k.page}
	if n, ok := k.notes.Current(); ok {
		s.Notification = &n
	}

	switch k.page {
	case PageHome:
		s.Home = &HomeContext{
			Form:     k.draft,
			Students: append([]backend.Student(nil), k.students...),
		}
	case PageCapture:
		c := &CaptureContext{
			Form:      k.draft,
			MinImages: k.settings.MinImages,
			MaxImages: k.settings.MaxImages,
			Camera:    k.cam.State(),
		}
		if k.capture != nil {
			c.Images = k.capture.batch.Len()
			c.MaxImages = k.capture.batch.SoftCap()
			c.Remaining = k.capture.batch.Remaining()
			c.Submitting = k.capture.submitting
			c.Registered = k.capture.registered
		}
		s.Capture = c
	case PageRecognition:
		r := &RecognitionContext{
			Camera:  k.cam.State(),
			Polling: k.loop.Active(),
			Stats:   k.loop.Stats(),
		}
		if k.recognition != nil {
			r.Attendance = k.recognition.attendance
			r.Training = k.recognition.training
			r.Trained = k.recognition.trained
		}
		if session, ok := k.loop.Session(); ok {
			r.Session = &session
		}
		if result, ok := k.loop.Result(); ok {
			r.Result = &result
		}
		s.Recognition = r
	}
	return s
}

// Loop exposes the recognition loop for read-only views such as the
// annotated frame.
func (k *Kiosk) Loop() *recognition.Loop {
	return k.loop
}

// GoHome leaves any page for the home page. The registration draft is kept;
// captured images, the attendance session and the camera are released.
func (k *Kiosk) GoHome() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrClosed
	}
	k.enterLocked(PageHome)
	k.mu.Unlock()

	k.changed()
	return nil
}

// Close tears down the current page. The kiosk rejects every later action.
func (k *Kiosk) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.enterLocked(PageHome)
	k.closed = true
	k.mu.Unlock()
}

// enterLocked runs the teardown for the current page and switches to p.
func (k *Kiosk) enterLocked(p Page) {
	k.teardownLocked()
	k.page = p
	k.epoch++
	switch p {
	case PageCapture:
		k.capture = &captureContext{batch: registration.NewBatch(k.settings.MaxImages)}
	case PageRecognition:
		k.recognition = &recognitionContext{}
	}
}

// teardownLocked is the single exit path of every page.
func (k *Kiosk) teardownLocked() {
	if k.capture != nil {
		if k.capture.redirect != nil {
			k.capture.redirect.Stop()
		}
		k.capture.batch.Reset()
		k.capture = nil
	}
	k.recognition = nil
	k.loop.Stop()
	k.cam.Release()
}

// requireLocked checks the kiosk is open and on page p.
func (k *Kiosk) requireLocked(p Page, action string) error {
	if k.closed {
		return ErrClosed
	}
	if k.page != p {
		return fmt.Errorf("%w: %s needs the %s page, kiosk is on %s", ErrWrongPage, action, p, k.page)
	}
	return nil
}

// changed broadcasts the new state to listeners. Must be called without k.mu.
func (k *Kiosk) changed() {
	k.notes.Publish(notify.Event{Type: notify.EventState, Data: k.State()})
}

// fail shows msg to the operator and returns it as an *Error wrapping err.
func (k *Kiosk) fail(msg string, err error) error {
	k.notes.Error(msg)
	return &Error{Message: msg, Err: err}
}
