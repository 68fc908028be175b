package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Branches               []string `json:"branches"`
	DefaultBranch          string   `json:"default_branch"`
	MinImages              int      `json:"min_images"`
	MaxImages              int      `json:"max_images"`
	RecognitionIntervalMS  int64    `json:"recognition_interval_ms"`
	SessionDurationMinutes int      `json:"session_duration_minutes"`
	NotificationTTLMS      int64    `json:"notification_ttl_ms"`
	BackendConfigured      bool     `json:"backend_configured"`
}

// Get returns the form options and kiosk limits. Branches are the ones
// registration accepts.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	branches := make([]string, 0, len(registration.Branches))
	for _, b := range registration.Branches {
		branches = append(branches, string(b))
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Branches:               branches,
		DefaultBranch:          string(registration.DefaultBranch),
		MinImages:              h.config.Registration.MinImages,
		MaxImages:              h.config.Registration.MaxImages,
		RecognitionIntervalMS:  h.config.Recognition.Interval.Milliseconds(),
		SessionDurationMinutes: h.config.Session.DurationMinutes,
		NotificationTTLMS:      h.config.Notify.TTL.Milliseconds(),
		BackendConfigured:      h.config.Backend.URL != "",
	})
}
