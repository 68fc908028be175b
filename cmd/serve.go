package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk API",
	Long: `Start the Face Attendance kiosk API.
The server exposes the kiosk pages (registration, capture, recognition) as a
JSON API with a server-sent event stream that a touch panel or browser page
can drive.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Duration("interval", 0, "Recognition poll interval (overrides RECOGNITION_INTERVAL_MS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Backend.URL == "" {
		return errors.New("ATTENDANCE_API_URL environment variable is required")
	}
	cfg.Web.Port = intOverride(cmd, "port", cfg.Web.Port)
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	cfg.Recognition.Interval = durationOverride(cmd, "interval", cfg.Recognition.Interval)

	env, err := newKioskEnv(cfg, kiosk.SettingsFromConfig(cfg))
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, env.kiosk, env.notes, env.logger.With("component", "web"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		// Stops the poll loop and releases the camera before the streams close.
		env.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance kiosk on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("Attendance API: %s\n", cfg.Backend.URL)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
