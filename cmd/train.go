package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/kiosk"
)

var trainCmd = &cobra.Command{
	Use:   "train <section> <semester>",
	Short: "Train the recognition model for a class",
	Long: `Retrain the face recognition model with the students of one section and
semester. Training runs on the attendance API and may take a few minutes.

Example:
  face-attendance train A 7`,
	Args: cobra.ExactArgs(2),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	in := kiosk.AttendanceForm{Section: args[0], Semester: args[1]}.Normalize()
	if in.Section == "" || in.Semester == "" {
		return errors.New("section and semester are required")
	}

	cfg := config.Load()
	api, err := newBackend(cfg)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Training model for %s", in.ClassName())),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	result, err := api.Train(cmd.Context(), in.Section, in.Semester)
	close(done)
	bar.Finish()
	fmt.Println()

	if err != nil {
		if backend.IsAPIError(err) {
			return fmt.Errorf("training failed: %s", backend.DetailOf(err, "Training failed"))
		}
		return fmt.Errorf("failed to train model: %w", err)
	}

	fmt.Printf("Model trained successfully! %d students trained\n", result.StudentsTrained)
	return nil
}
