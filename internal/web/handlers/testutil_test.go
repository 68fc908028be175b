package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{URL: "http://localhost:8000"},
		Registration: config.RegistrationConfig{
			MinImages:     5,
			MaxImages:     10,
			JPEGQuality:   95,
			RedirectDelay: 20 * time.Millisecond,
		},
		Recognition: config.RecognitionConfig{Interval: time.Hour, JPEGQuality: 80},
		Session:     config.SessionConfig{DurationMinutes: 60},
		Notify:      config.NotifyConfig{TTL: 4 * time.Second},
	}
}

// writeTestFrames fills dir with n small PNG frames for a directory camera.
func writeTestFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for y := range 48 {
			for x := range 64 {
				img.Set(x, y, color.RGBA{R: uint8(i * 30), G: 80, B: 120, A: 255})
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

// newTestKiosk creates a kiosk backed by a frame directory and a mock
// attendance API serving the given handlers.
func newTestKiosk(t *testing.T, handlers map[string]http.HandlerFunc) (*kiosk.Kiosk, *notify.Center) {
	t.Helper()

	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api, err := backend.New(server.URL)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	dir := t.TempDir()
	writeTestFrames(t, dir, 3)

	notes := notify.NewCenter(time.Minute)
	k := kiosk.New(kiosk.SettingsFromConfig(testConfig()), camera.NewSession(camera.NewDirSource(dir)), api, notes, nil)
	t.Cleanup(k.Close)
	return k, notes
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
