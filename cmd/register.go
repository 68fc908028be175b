package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a student from camera snapshots",
	Long: `Register a student with the attendance API.

The camera is started, the requested number of snapshots is captured with a
short pause between them, and the form is submitted together with every image
in a single request.

Examples:
  face-attendance register --name "Alice Smith" --enrollment E100 --section A --semester 7
  face-attendance register --name Bob --enrollment E101 --section B --semester 5 --branch IT --images 8`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Student name (required)")
	registerCmd.Flags().String("enrollment", "", "Enrollment number (required)")
	registerCmd.Flags().String("section", "", "Section (required)")
	registerCmd.Flags().String("semester", "", "Semester (required)")
	registerCmd.Flags().String("branch", "", "Branch (CSE, IT, ECE, ME, CE, EE; default CSE)")
	registerCmd.Flags().String("email", "", "Email address")
	registerCmd.Flags().String("mobile", "", "Mobile number")
	registerCmd.Flags().String("fees", "", "Fees paid")
	registerCmd.Flags().Int("images", 0, "Number of images to capture (default: minimum required)")
	registerCmd.Flags().Duration("pause", 500*time.Millisecond, "Pause between captures")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	settings := kiosk.SettingsFromConfig(cfg)

	branch, err := registration.ParseBranch(mustGetString(cmd, "branch"))
	if err != nil {
		return err
	}
	form := registration.Form{
		Name:             mustGetString(cmd, "name"),
		EnrollmentNumber: mustGetString(cmd, "enrollment"),
		Section:          mustGetString(cmd, "section"),
		Semester:         mustGetString(cmd, "semester"),
		Branch:           branch,
		Email:            mustGetString(cmd, "email"),
		Mobile:           mustGetString(cmd, "mobile"),
		Fees:             mustGetString(cmd, "fees"),
	}.Normalize()
	if err := form.Validate(); err != nil {
		return fmt.Errorf("invalid form: %w", err)
	}

	count := intOverride(cmd, "images", settings.MinImages)
	if count < settings.MinImages {
		return fmt.Errorf("at least %d images are required", settings.MinImages)
	}
	pause := mustGetDuration(cmd, "pause")

	env, err := newKioskEnv(cfg, settings)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	k := env.kiosk

	if err := k.UpdateForm(form); err != nil {
		return err
	}

	fmt.Printf("Starting camera (%s)...\n", cfg.Camera.Source)
	if err := k.OpenCapture(ctx); err != nil {
		return errors.New(kiosk.Message(err))
	}

	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Capturing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	for captured := 0; captured < count; {
		_, err := k.CaptureImage(ctx)
		switch {
		case errors.Is(err, camera.ErrNotReady):
			// The device is still warming up.
		case err != nil:
			return errors.New(kiosk.Message(err))
		default:
			captured++
			bar.Add(1)
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
	}
	bar.Finish()
	fmt.Println()

	fmt.Printf("Registering %s (%s) with %d images...\n", form.Name, form.EnrollmentNumber, count)
	result, err := k.SubmitRegistration(ctx)
	if err != nil {
		return fmt.Errorf("registration failed: %s", kiosk.Message(err))
	}

	msg := result.Message
	if msg == "" {
		msg = "Student registered successfully!"
	}
	fmt.Println(msg)
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
