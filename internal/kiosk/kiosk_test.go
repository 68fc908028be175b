package kiosk

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

type testEnv struct {
	kiosk *Kiosk
	notes *notify.Center
	cam   *camera.Session

	mu    sync.Mutex
	calls map[string]int
}

func (e *testEnv) count(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

func testSettings() Settings {
	return Settings{
		MinImages:           5,
		MaxImages:           10,
		CaptureQuality:      95,
		RedirectDelay:       20 * time.Millisecond,
		SessionDuration:     60,
		RecognitionInterval: time.Hour,
		RecognitionQuality:  80,
	}
}

// writeFrames fills dir with n small PNG frames.
func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for y := range 48 {
			for x := range 64 {
				img.Set(x, y, color.RGBA{R: uint8(i * 20), G: 100, B: 100, A: 255})
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame_%02d.png", i)))
		if err != nil {
			t.Fatalf("failed to create frame: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("failed to encode frame: %v", err)
		}
		f.Close()
	}
}

// newTestEnv creates a kiosk backed by a frame directory and a mock API.
func newTestEnv(t *testing.T, cameraDir string, handlers map[string]http.HandlerFunc) *testEnv {
	t.Helper()
	env := &testEnv{calls: make(map[string]int)}

	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			env.mu.Lock()
			env.calls[pattern]++
			env.mu.Unlock()
			handler(w, r)
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api, err := backend.New(server.URL)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if cameraDir == "" {
		cameraDir = t.TempDir()
		writeFrames(t, cameraDir, 3)
	}
	env.cam = camera.NewSession(camera.NewDirSource(cameraDir))
	env.notes = notify.NewCenter(time.Minute)
	env.kiosk = New(testSettings(), env.cam, api, env.notes, nil)
	t.Cleanup(env.kiosk.Close)
	return env
}

func (e *testEnv) notification(t *testing.T) string {
	t.Helper()
	n, ok := e.notes.Current()
	if !ok {
		return ""
	}
	return n.Message
}

func validDraft() registration.Form {
	return registration.Form{Name: "Alice", EnrollmentNumber: "E100", Section: "a", Semester: "7"}
}

func attendanceInputs() AttendanceForm {
	return AttendanceForm{TeacherID: "T1", SubjectID: "CS101", Section: "a", Semester: "7"}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func registerHandler(t *testing.T, images *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart: %v", err)
			return
		}
		*images = len(r.MultipartForm.File["images"])
		if r.FormValue("name") != "Alice" || r.FormValue("enrollment_number") != "E100" ||
			r.FormValue("section") != "A" || r.FormValue("year") != "7" || r.FormValue("branch") != "CSE" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		w.Write([]byte(`{"success":true,"message":"Student registered"}`))
	}
}

func TestKiosk_StartsHome(t *testing.T) {
	env := newTestEnv(t, "", nil)
	s := env.kiosk.State()
	if s.Page != PageHome || s.Home == nil {
		t.Fatalf("expected home page, got %+v", s)
	}
	if s.Capture != nil || s.Recognition != nil {
		t.Error("expected only the home context")
	}
}

func TestKiosk_WrongPage(t *testing.T) {
	env := newTestEnv(t, "", nil)
	if _, err := env.kiosk.CaptureImage(context.Background()); !errors.Is(err, ErrWrongPage) {
		t.Errorf("expected ErrWrongPage, got %v", err)
	}
	if _, err := env.kiosk.SubmitRegistration(context.Background()); !errors.Is(err, ErrWrongPage) {
		t.Errorf("expected ErrWrongPage, got %v", err)
	}
	if err := env.kiosk.StopRecognition(); !errors.Is(err, ErrWrongPage) {
		t.Errorf("expected ErrWrongPage, got %v", err)
	}
}

func TestKiosk_OpenCaptureRequiresIdentity(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.kiosk.UpdateForm(registration.Form{Name: "Alice"})

	err := env.kiosk.OpenCapture(context.Background())
	if !errors.Is(err, registration.ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if Message(err) != msgIdentityRequired || env.notification(t) != msgIdentityRequired {
		t.Errorf("unexpected message %q", Message(err))
	}
	if env.kiosk.Page() != PageHome {
		t.Error("expected to stay on home page")
	}
	if env.cam.Capturing() {
		t.Error("camera must not be started")
	}
}

func TestKiosk_RegistrationFlow(t *testing.T) {
	var images int
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/register/student": registerHandler(t, &images),
	})
	ctx := context.Background()
	k := env.kiosk

	if err := k.UpdateForm(validDraft()); err != nil {
		t.Fatalf("UpdateForm failed: %v", err)
	}
	if got := k.State().Home.Form.Section; got != "A" {
		t.Errorf("expected upper-case section, got %q", got)
	}
	if err := k.OpenCapture(ctx); err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	if s := k.State(); s.Page != PageCapture || !s.Capture.Camera.Ready {
		t.Fatalf("expected ready capture page, got %+v", s)
	}

	for i := range 4 {
		n, err := k.CaptureImage(ctx)
		if err != nil {
			t.Fatalf("CaptureImage failed: %v", err)
		}
		if n != i+1 {
			t.Errorf("expected %d images, got %d", i+1, n)
		}
	}
	if env.notification(t) != "Image 4 captured" {
		t.Errorf("unexpected notification %q", env.notification(t))
	}
	if c := k.State().Capture; c.MaxImages != 10 || c.Remaining != 6 {
		t.Errorf("expected 6 of 10 captures remaining, got %d of %d", c.Remaining, c.MaxImages)
	}

	_, err := k.SubmitRegistration(ctx)
	if !errors.Is(err, registration.ErrTooFewImages) {
		t.Fatalf("expected ErrTooFewImages, got %v", err)
	}
	if Message(err) != "Please capture at least 5 images" {
		t.Errorf("unexpected message %q", Message(err))
	}
	if env.count("/register/student") != 0 {
		t.Fatal("no request may be sent with 4 images")
	}

	if _, err := k.CaptureImage(ctx); err != nil {
		t.Fatalf("CaptureImage failed: %v", err)
	}
	if img, ok := k.Image(4); !ok || img.ContentType != "image/jpeg" {
		t.Error("expected fifth image to be retrievable")
	}

	if _, err := k.SubmitRegistration(ctx); err != nil {
		t.Fatalf("SubmitRegistration failed: %v", err)
	}
	if env.count("/register/student") != 1 {
		t.Errorf("expected exactly one request, got %d", env.count("/register/student"))
	}
	if images != 5 {
		t.Errorf("expected 5 image parts, got %d", images)
	}
	if !k.State().Capture.Registered {
		t.Error("expected registered flag before redirect")
	}

	waitFor(t, func() bool { return k.Page() == PageHome })
	s := k.State()
	if s.Home.Form.Name != "" {
		t.Error("expected draft cleared after successful registration")
	}
	if env.cam.Capturing() {
		t.Error("expected camera released after redirect")
	}
}

func TestKiosk_RegistrationFailureKeepsState(t *testing.T) {
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/register/student": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail":"Student already registered"}`))
		},
	})
	ctx := context.Background()
	k := env.kiosk
	k.UpdateForm(validDraft())
	if err := k.OpenCapture(ctx); err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	for range 5 {
		k.CaptureImage(ctx)
	}

	_, err := k.SubmitRegistration(ctx)
	if Message(err) != "Student already registered" {
		t.Errorf("expected backend detail, got %q", Message(err))
	}
	s := k.State()
	if s.Page != PageCapture || s.Capture.Images != 5 || s.Capture.Form.Name != "Alice" {
		t.Errorf("expected form and images kept, got %+v", s.Capture)
	}
}

func TestKiosk_RegistrationNetworkError(t *testing.T) {
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/register/student": func(w http.ResponseWriter, r *http.Request) {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijacking not supported")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
		},
	})
	ctx := context.Background()
	k := env.kiosk
	k.UpdateForm(validDraft())
	k.OpenCapture(ctx)
	for range 5 {
		k.CaptureImage(ctx)
	}

	_, err := k.SubmitRegistration(ctx)
	if Message(err) != msgNetworkError {
		t.Errorf("expected network error message, got %q", Message(err))
	}
}

func TestKiosk_MissingFields(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ctx := context.Background()
	k := env.kiosk
	k.UpdateForm(registration.Form{Name: "Alice", EnrollmentNumber: "E100"})
	if err := k.OpenCapture(ctx); err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	for range 5 {
		k.CaptureImage(ctx)
	}

	_, err := k.SubmitRegistration(ctx)
	if !errors.Is(err, registration.ErrMissingFields) || Message(err) != msgMissingFields {
		t.Errorf("expected missing fields, got %v", err)
	}
}

func TestKiosk_OpenCaptureCameraError(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "missing"), nil)
	k := env.kiosk
	k.UpdateForm(validDraft())

	err := k.OpenCapture(context.Background())
	if !errors.Is(err, camera.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if Message(err) != "Camera error: No camera found." {
		t.Errorf("unexpected message %q", Message(err))
	}
	s := k.State()
	if s.Page != PageCapture || s.Capture.Camera.Capturing || s.Capture.Camera.Ready {
		t.Errorf("expected inactive camera on capture page, got %+v", s.Capture)
	}

	_, err = k.CaptureImage(context.Background())
	if !errors.Is(err, camera.ErrNotReady) || Message(err) != msgVideoNotReady {
		t.Errorf("expected not ready, got %v", err)
	}
	if k.State().Capture.Images != 0 {
		t.Error("failed snapshot must not append an image")
	}
}

func TestKiosk_LeaveCaptureKeepsDraft(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ctx := context.Background()
	k := env.kiosk
	k.UpdateForm(validDraft())
	k.OpenCapture(ctx)
	k.CaptureImage(ctx)

	if err := k.LeaveCapture(); err != nil {
		t.Fatalf("LeaveCapture failed: %v", err)
	}
	s := k.State()
	if s.Page != PageHome || s.Home.Form.Name != "Alice" {
		t.Errorf("expected home page with draft, got %+v", s)
	}
	if env.cam.Capturing() {
		t.Error("expected camera released")
	}
	if _, ok := k.Image(0); ok {
		t.Error("expected captured images dropped")
	}

	k.CancelForm()
	if k.State().Home.Form.Name != "" {
		t.Error("expected draft cleared by CancelForm")
	}
}

func TestKiosk_RegistrationSucceedsAfterLeaving(t *testing.T) {
	var images int
	release := make(chan struct{})
	handler := registerHandler(t, &images)
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/register/student": func(w http.ResponseWriter, r *http.Request) {
			<-release
			handler(w, r)
		},
	})
	ctx := context.Background()
	k := env.kiosk
	k.UpdateForm(validDraft())
	if err := k.OpenCapture(ctx); err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	for range 5 {
		if _, err := k.CaptureImage(ctx); err != nil {
			t.Fatalf("CaptureImage failed: %v", err)
		}
	}

	submitted := make(chan error, 1)
	go func() {
		_, err := k.SubmitRegistration(ctx)
		submitted <- err
	}()
	waitFor(t, func() bool { return env.count("/register/student") == 1 })

	if err := k.LeaveCapture(); err != nil {
		t.Fatalf("LeaveCapture failed: %v", err)
	}
	close(release)

	if err := <-submitted; err != nil {
		t.Fatalf("SubmitRegistration failed: %v", err)
	}
	if images != 5 {
		t.Errorf("expected 5 image parts, got %d", images)
	}
	s := k.State()
	if s.Page != PageHome || s.Home.Form.Name != "" {
		t.Errorf("expected draft cleared after confirmed registration, got %+v", s.Home)
	}
}

func sessionHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart: %v", err)
			return
		}
		if r.FormValue("class_name") != "A-7" || r.FormValue("duration_minutes") != "60" {
			t.Errorf("unexpected session fields %v", r.MultipartForm.Value)
		}
		w.Write([]byte(`{"session":{"session_id":42,"teacher_id":"T1","subject_id":"CS101","section":"A","semester":"7"}}`))
	}
}

func TestKiosk_StartAttendance(t *testing.T) {
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/attendance/start-session": sessionHandler(t),
	})
	k := env.kiosk
	if err := k.OpenRecognition(); err != nil {
		t.Fatalf("OpenRecognition failed: %v", err)
	}

	session, err := k.StartAttendance(context.Background(), attendanceInputs())
	if err != nil {
		t.Fatalf("StartAttendance failed: %v", err)
	}
	if session.ID != "42" || session.ClassName != "A-7" {
		t.Errorf("unexpected session %+v", session)
	}

	s := k.State()
	if !s.Recognition.Polling || s.Recognition.Session == nil || !s.Recognition.Camera.Ready {
		t.Fatalf("expected polling with session, got %+v", s.Recognition)
	}
	if env.notification(t) != "Recognition started" {
		t.Errorf("unexpected notification %q", env.notification(t))
	}

	if _, err := k.StartAttendance(context.Background(), attendanceInputs()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while polling, got %v", err)
	}

	for range 2 {
		if err := k.StopRecognition(); err != nil {
			t.Fatalf("StopRecognition failed: %v", err)
		}
		s = k.State()
		if s.Recognition.Polling || s.Recognition.Session != nil || s.Recognition.Camera.Capturing {
			t.Errorf("expected stopped loop and released camera, got %+v", s.Recognition)
		}
	}
	if s.Page != PageRecognition {
		t.Error("stop must keep the recognition page")
	}
}

func TestKiosk_DuplicateSession(t *testing.T) {
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/attendance/start-session": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"duplicate session"}`))
		},
		"/attendance/recognize-and-mark": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false}`))
		},
	})
	k := env.kiosk
	k.OpenRecognition()

	_, err := k.StartAttendance(context.Background(), attendanceInputs())
	if Message(err) != "duplicate session" {
		t.Fatalf("expected 'duplicate session', got %q", Message(err))
	}
	if env.notification(t) != "duplicate session" {
		t.Errorf("expected notification 'duplicate session', got %q", env.notification(t))
	}
	if k.Loop().Active() {
		t.Error("loop must not start")
	}
	if env.cam.Capturing() {
		t.Error("camera must not be started")
	}
	if env.count("/attendance/recognize-and-mark") != 0 {
		t.Error("no recognition request expected")
	}
}

func TestKiosk_SessionInputsRequired(t *testing.T) {
	env := newTestEnv(t, "", nil)
	k := env.kiosk
	k.OpenRecognition()

	_, err := k.StartAttendance(context.Background(), AttendanceForm{TeacherID: "T1", Section: "A"})
	if Message(err) != msgSessionInputs {
		t.Errorf("unexpected message %q", Message(err))
	}
	if k.State().Recognition.Attendance.TeacherID != "T1" {
		t.Error("expected inputs kept")
	}
}

func TestKiosk_Train(t *testing.T) {
	trained := true
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/train": func(w http.ResponseWriter, r *http.Request) {
			if !trained {
				w.Write([]byte(`{"success":false,"detail":"No students found for section B"}`))
				return
			}
			w.Write([]byte(`{"success":true,"students_trained":12}`))
		},
	})
	k := env.kiosk
	k.OpenRecognition()
	ctx := context.Background()

	if _, err := k.Train(ctx, "", "7"); Message(err) != msgTrainInputs {
		t.Errorf("expected inputs message, got %q", Message(err))
	}

	result, err := k.Train(ctx, "a", "7")
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if result.StudentsTrained != 12 {
		t.Errorf("expected 12 students, got %d", result.StudentsTrained)
	}
	if env.notification(t) != "Model trained successfully! 12 students trained" {
		t.Errorf("unexpected notification %q", env.notification(t))
	}
	s := k.State().Recognition
	if s.Training || s.Trained == nil || s.Attendance.Section != "A" {
		t.Errorf("unexpected recognition context %+v", s)
	}

	trained = false
	if _, err := k.Train(ctx, "B", "7"); Message(err) != "No students found for section B" {
		t.Errorf("expected backend detail, got %q", Message(err))
	}
}

func TestKiosk_GoHomeTearsDown(t *testing.T) {
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/attendance/start-session": sessionHandler(t),
	})
	k := env.kiosk
	k.OpenRecognition()
	if _, err := k.StartAttendance(context.Background(), attendanceInputs()); err != nil {
		t.Fatalf("StartAttendance failed: %v", err)
	}

	if err := k.GoHome(); err != nil {
		t.Fatalf("GoHome failed: %v", err)
	}
	if k.Loop().Active() {
		t.Error("expected loop stopped")
	}
	if env.cam.Capturing() {
		t.Error("expected camera released")
	}
	if s := k.State(); s.Page != PageHome || s.Recognition != nil {
		t.Errorf("expected home page, got %+v", s)
	}
}

func TestKiosk_Students(t *testing.T) {
	fail := false
	env := newTestEnv(t, "", map[string]http.HandlerFunc{
		"/debug/students": func(w http.ResponseWriter, r *http.Request) {
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"students":[{"enrollment_number":101,"name":"Alice","section":"A","semester":7}]}`))
		},
	})
	k := env.kiosk

	students, err := k.Students(context.Background())
	if err != nil {
		t.Fatalf("Students failed: %v", err)
	}
	if len(students) != 1 || students[0].EnrollmentNumber != "101" {
		t.Errorf("unexpected students %+v", students)
	}
	if len(k.State().Home.Students) != 1 {
		t.Error("expected students kept on home page")
	}

	fail = true
	if _, err := k.Students(context.Background()); Message(err) != msgFetchStudents {
		t.Errorf("expected fetch failure message, got %q", Message(err))
	}
}

func TestKiosk_Close(t *testing.T) {
	env := newTestEnv(t, "", nil)
	k := env.kiosk
	k.UpdateForm(validDraft())
	k.OpenCapture(context.Background())

	k.Close()
	if env.cam.Capturing() {
		t.Error("expected camera released on Close")
	}
	if err := k.GoHome(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	k.Close()
}

func TestKiosk_EventsPublished(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ch := env.notes.Subscribe()
	defer env.notes.Unsubscribe(ch)

	env.kiosk.OpenRecognition()

	select {
	case e := <-ch:
		if e.Type != notify.EventState {
			t.Errorf("expected state event, got %s", e.Type)
		}
		if s, ok := e.Data.(State); !ok || s.Page != PageRecognition {
			t.Errorf("unexpected state payload %+v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a state event")
	}
}
