package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

// newLogger returns the structured logger for long-running components.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newBackend connects the attendance API client, honoring --capture.
func newBackend(cfg *config.Config) (*backend.Client, error) {
	opts := []backend.Option{backend.WithTimeout(cfg.Backend.Timeout)}
	if captureDir != "" {
		opts = append(opts, backend.WithCaptureDir(captureDir))
	}
	api, err := backend.New(cfg.Backend.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create attendance API client: %w", err)
	}
	return api, nil
}

// newCamera builds the capture session. The device is acquired on demand.
func newCamera(cfg *config.Config) (*camera.Session, error) {
	source, err := camera.NewSource(cfg.Camera.Source)
	if err != nil {
		return nil, fmt.Errorf("could not configure camera: %w", err)
	}
	return camera.NewSession(source,
		camera.WithWarmUp(cfg.Camera.WarmUp),
		camera.WithMaxWidth(cfg.Camera.MaxWidth),
	), nil
}

// newNotifications creates the notification center, attaching the MQTT sink
// when a broker is configured. A broker that cannot be reached is logged and
// skipped.
func newNotifications(cfg *config.Config, logger *slog.Logger) *notify.Center {
	opts := []notify.Option{notify.WithLogger(logger)}
	if cfg.Notify.MQTTBroker != "" {
		sink, err := notify.NewMQTTSink(notify.MQTTConfig{
			Broker:   cfg.Notify.MQTTBroker,
			Topic:    cfg.Notify.MQTTTopic,
			Username: cfg.Notify.MQTTUsername,
			Password: cfg.Notify.MQTTPassword,
		}, logger.With("component", "mqtt"))
		if err != nil {
			logger.Warn("mqtt notifications disabled", "error", err)
		} else {
			opts = append(opts, notify.WithSink(sink))
		}
	}
	return notify.NewCenter(cfg.Notify.TTL, opts...)
}

// kioskEnv is everything a command needs to drive the kiosk.
type kioskEnv struct {
	kiosk  *kiosk.Kiosk
	notes  *notify.Center
	api    *backend.Client
	cam    *camera.Session
	logger *slog.Logger
}

// Close tears the kiosk down and releases the camera and sinks.
func (e *kioskEnv) Close() {
	e.kiosk.Close()
	e.notes.Close()
}

// newKioskEnv wires the camera, API client and notifications into a kiosk.
func newKioskEnv(cfg *config.Config, settings kiosk.Settings) (*kioskEnv, error) {
	logger := newLogger()

	api, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	cam, err := newCamera(cfg)
	if err != nil {
		return nil, err
	}
	notes := newNotifications(cfg, logger)

	return &kioskEnv{
		kiosk:  kiosk.New(settings, cam, api, notes, logger.With("component", "kiosk")),
		notes:  notes,
		api:    api,
		cam:    cam,
		logger: logger,
	}, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
