package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondImage writes an encoded frame.
func respondImage(w http.ResponseWriter, img camera.Image) {
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// statusFor maps a kiosk action error to an HTTP status.
func statusFor(err error) int {
	var de *camera.DeviceError
	switch {
	case errors.Is(err, kiosk.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, kiosk.ErrWrongPage),
		errors.Is(err, kiosk.ErrBusy),
		errors.Is(err, camera.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, kiosk.ErrInvalidInput),
		errors.Is(err, registration.ErrIdentityRequired),
		errors.Is(err, registration.ErrMissingFields),
		errors.Is(err, registration.ErrTooFewImages),
		errors.Is(err, registration.ErrUnknownBranch),
		errors.Is(err, registration.ErrInvalidFees):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return http.StatusServiceUnavailable
	case backend.IsAPIError(err):
		return http.StatusBadGateway
	}
	var ke *kiosk.Error
	if errors.As(err, &ke) {
		// Transport failures talking to the backend or the camera source.
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondKioskError sends the operator-facing message of err.
func respondKioskError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), kiosk.Message(err))
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
