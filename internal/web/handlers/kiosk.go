package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

// KioskHandler drives the kiosk pages over HTTP.
type KioskHandler struct {
	kiosk  *kiosk.Kiosk
	logger *slog.Logger
}

// NewKioskHandler creates a new kiosk handler
func NewKioskHandler(k *kiosk.Kiosk, logger *slog.Logger) *KioskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KioskHandler{kiosk: k, logger: logger}
}

// TrainRequest selects the class to train.
type TrainRequest struct {
	Section  string `json:"section"`
	Semester string `json:"semester"`
}

// CaptureResponse is returned after each captured image.
type CaptureResponse struct {
	Images int         `json:"images"`
	State  kiosk.State `json:"state"`
}

// RegistrationResponse is returned after a successful registration.
type RegistrationResponse struct {
	Result *backend.RegisterResult `json:"result"`
	State  kiosk.State             `json:"state"`
}

// TrainResponse is returned after training.
type TrainResponse struct {
	Result *backend.TrainResult `json:"result"`
	State  kiosk.State          `json:"state"`
}

// AttendanceResponse is returned once a session is running.
type AttendanceResponse struct {
	Session *backend.AttendanceSession `json:"session"`
	State   kiosk.State                `json:"state"`
}

// StudentsResponse lists registered students.
type StudentsResponse struct {
	Students []backend.Student `json:"students"`
	Count    int               `json:"count"`
}

// decodeJSON reads a size-limited JSON body into v. It writes the error
// response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// State returns the current page and its context.
func (h *KioskHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// UpdateForm replaces the registration draft.
func (h *KioskHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	var form registration.Form
	if !decodeJSON(w, r, &form) {
		return
	}
	if err := h.kiosk.UpdateForm(form); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// CancelForm clears the registration draft.
func (h *KioskHandler) CancelForm(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.CancelForm(); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// OpenCapture moves to the capture page and starts the camera. A camera
// failure still leaves the kiosk on the capture page.
func (h *KioskHandler) OpenCapture(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.OpenCapture(r.Context()); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// CaptureImage takes one snapshot for the registration batch.
func (h *KioskHandler) CaptureImage(w http.ResponseWriter, r *http.Request) {
	n, err := h.kiosk.CaptureImage(r.Context())
	if err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CaptureResponse{Images: n, State: h.kiosk.State()})
}

// Image returns one captured image for the thumbnail strip.
func (h *KioskHandler) Image(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "invalid image index")
		return
	}
	img, ok := h.kiosk.Image(index)
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	respondImage(w, img)
}

// LeaveCapture returns home, dropping the captured images.
func (h *KioskHandler) LeaveCapture(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.LeaveCapture(); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// Register submits the draft with every captured image.
func (h *KioskHandler) Register(w http.ResponseWriter, r *http.Request) {
	result, err := h.kiosk.SubmitRegistration(r.Context())
	if err != nil {
		respondKioskError(w, err)
		return
	}
	s := h.kiosk.State()
	if s.Capture != nil {
		h.logger.Info("registration submitted", "enrollment_number", sanitizeForLog(s.Capture.Form.EnrollmentNumber))
	}
	respondJSON(w, http.StatusCreated, RegistrationResponse{Result: result, State: s})
}

// Students lists the registered students.
func (h *KioskHandler) Students(w http.ResponseWriter, r *http.Request) {
	students, err := h.kiosk.Students(r.Context())
	if err != nil {
		respondKioskError(w, err)
		return
	}
	if students == nil {
		students = []backend.Student{}
	}
	respondJSON(w, http.StatusOK, StudentsResponse{Students: students, Count: len(students)})
}

// OpenRecognition moves to the recognition page.
func (h *KioskHandler) OpenRecognition(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.OpenRecognition(); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// Train retrains the model for one class.
func (h *KioskHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.kiosk.Train(r.Context(), req.Section, req.Semester)
	if err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TrainResponse{Result: result, State: h.kiosk.State()})
}

// StartAttendance opens a session and starts the recognition loop.
func (h *KioskHandler) StartAttendance(w http.ResponseWriter, r *http.Request) {
	var req kiosk.AttendanceForm
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.kiosk.StartAttendance(r.Context(), req)
	if err != nil {
		respondKioskError(w, err)
		return
	}
	h.logger.Info("attendance started", "session_id", sanitizeForLog(session.ID))
	respondJSON(w, http.StatusCreated, AttendanceResponse{Session: session, State: h.kiosk.State()})
}

// StopAttendance stops the recognition loop.
func (h *KioskHandler) StopAttendance(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.StopRecognition(); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// Frame returns the last annotated recognition frame.
func (h *KioskHandler) Frame(w http.ResponseWriter, r *http.Request) {
	img, ok := h.kiosk.Frame()
	if !ok {
		respondError(w, http.StatusNotFound, "no recognition frame yet")
		return
	}
	respondImage(w, img)
}

// Home returns to the home page from any page.
func (h *KioskHandler) Home(w http.ResponseWriter, r *http.Request) {
	if err := h.kiosk.GoHome(); err != nil {
		respondKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.State())
}
