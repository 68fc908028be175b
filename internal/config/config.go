package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Backend      BackendConfig
	Camera       CameraConfig
	Registration RegistrationConfig
	Recognition  RecognitionConfig
	Session      SessionConfig
	Notify       NotifyConfig
	Web          WebConfig
}

type BackendConfig struct {
	URL     string // base URL of the attendance API (e.g., https://attendance.example.com)
	Timeout time.Duration
}

type CameraConfig struct {
	Source   string // dir:/path/to/frames or http(s):// snapshot URL
	WarmUp   time.Duration
	MaxWidth int // frames wider than this are downscaled before encoding, 0 disables
}

type RegistrationConfig struct {
	MinImages     int
	MaxImages     int // soft cap, only shown to the operator
	JPEGQuality   int
	RedirectDelay time.Duration
}

type RecognitionConfig struct {
	Interval    time.Duration
	JPEGQuality int
}

type SessionConfig struct {
	DurationMinutes int
}

type NotifyConfig struct {
	TTL          time.Duration
	MQTTBroker   string // optional, e.g. tcp://localhost:1883
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS allow-list, localhost is always allowed
}

// defaults mirrors defaults.yaml. Durations are kept in milliseconds there.
type defaults struct {
	Registration struct {
		MinImages       int `yaml:"min_images"`
		MaxImages       int `yaml:"max_images"`
		JPEGQuality     int `yaml:"jpeg_quality"`
		RedirectDelayMS int `yaml:"redirect_delay_ms"`
	} `yaml:"registration"`
	Recognition struct {
		IntervalMS  int `yaml:"interval_ms"`
		JPEGQuality int `yaml:"jpeg_quality"`
	} `yaml:"recognition"`
	Session struct {
		DurationMinutes int `yaml:"duration_minutes"`
	} `yaml:"session"`
	Camera struct {
		WarmUpMS int `yaml:"warmup_ms"`
		MaxWidth int `yaml:"max_width"`
	} `yaml:"camera"`
	Notify struct {
		TTLMS     int    `yaml:"ttl_ms"`
		MQTTTopic string `yaml:"mqtt_topic"`
	} `yaml:"notify"`
	Backend struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"backend"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envString returns the env var value or the default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty entries.
func envList(key string) []string {
	var out []string
	for v := range strings.SplitSeq(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// Embedded file, this can only fail on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Backend: BackendConfig{
			URL:     os.Getenv("ATTENDANCE_API_URL"),
			Timeout: time.Duration(envInt("ATTENDANCE_API_TIMEOUT", d.Backend.TimeoutSeconds)) * time.Second,
		},
		Camera: CameraConfig{
			Source:   os.Getenv("CAMERA_SOURCE"),
			WarmUp:   millis(envInt("CAMERA_WARMUP_MS", d.Camera.WarmUpMS)),
			MaxWidth: envInt("CAMERA_MAX_WIDTH", d.Camera.MaxWidth),
		},
		Registration: RegistrationConfig{
			MinImages:     d.Registration.MinImages,
			MaxImages:     d.Registration.MaxImages,
			JPEGQuality:   d.Registration.JPEGQuality,
			RedirectDelay: millis(d.Registration.RedirectDelayMS),
		},
		Recognition: RecognitionConfig{
			Interval:    millis(envInt("RECOGNITION_INTERVAL_MS", d.Recognition.IntervalMS)),
			JPEGQuality: d.Recognition.JPEGQuality,
		},
		Session: SessionConfig{
			DurationMinutes: d.Session.DurationMinutes,
		},
		Notify: NotifyConfig{
			TTL:          millis(envInt("NOTIFY_TTL_MS", d.Notify.TTLMS)),
			MQTTBroker:   os.Getenv("MQTT_BROKER"),
			MQTTTopic:    envString("MQTT_TOPIC", d.Notify.MQTTTopic),
			MQTTUsername: os.Getenv("MQTT_USERNAME"),
			MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
