package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/overlay"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <output.jpg>",
	Short: "Capture one frame from the camera",
	Long: `Start the camera, capture a single frame and write it as JPEG.
Useful for checking CAMERA_SOURCE and framing before a session.

With --overlay the recognition box and label panel are drawn on the frame,
the same way they appear during attendance.

Examples:
  face-attendance snapshot frame.jpg
  face-attendance snapshot --overlay --label "Alice" preview.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().Int("quality", 95, "JPEG quality (1-100)")
	snapshotCmd.Flags().Bool("overlay", false, "Draw the recognition overlay")
	snapshotCmd.Flags().String("label", "Preview", "Name shown in the overlay label")
	snapshotCmd.Flags().Duration("wait", 5*time.Second, "How long to wait for the first frame")
}

// snapshotWhenReady retries until the device has produced a frame.
func snapshotWhenReady(ctx context.Context, cam *camera.Session, quality int) (camera.Image, error) {
	for {
		img, err := cam.Snapshot(ctx, quality)
		if !errors.Is(err, camera.ErrNotReady) {
			return img, err
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return camera.Image{}, fmt.Errorf("camera did not produce a frame: %w", err)
		}
	}
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	output := args[0]
	quality := mustGetInt(cmd, "quality")
	if quality < 1 || quality > 100 {
		return errors.New("--quality must be between 1 and 100")
	}

	cfg := config.Load()
	cam, err := newCamera(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Camera.WarmUp+mustGetDuration(cmd, "wait"))
	defer cancel()

	var img camera.Image
	err = cam.Scope(ctx, func(ctx context.Context) error {
		var err error
		img, err = snapshotWhenReady(ctx, cam, quality)
		return err
	})
	if err != nil {
		return errors.New(camera.Diagnostic(err))
	}

	if mustGetBool(cmd, "overlay") {
		img, err = overlay.Annotate(img, overlay.Label{
			Name:   mustGetString(cmd, "label"),
			Status: "preview",
		}, quality)
		if err != nil {
			return fmt.Errorf("could not draw overlay: %w", err)
		}
	}

	if err := os.WriteFile(output, img.Data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", output, err)
	}
	fmt.Printf("Saved %dx%d frame to %s (%d bytes)\n", img.Width, img.Height, output, len(img.Data))
	return nil
}
