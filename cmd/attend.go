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
	"github.com/kozaktomas/face-attendance/internal/kiosk"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Run an attendance session from the terminal",
	Long: `Start an attendance session and mark students recognized by the camera.

The session is opened on the attendance API first; recognition only starts
once the API confirms it. Every match is printed as it is marked. Press
Ctrl+C to stop recognition and release the camera.

Examples:
  face-attendance attend --teacher T1 --subject CS101 --section A --semester 7
  face-attendance attend --teacher T1 --subject CS101 --section A --semester 7 --interval 5s --train`,
	Args: cobra.NoArgs,
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("teacher", "", "Teacher ID (required)")
	attendCmd.Flags().String("subject", "", "Subject ID (required)")
	attendCmd.Flags().String("section", "", "Section (required)")
	attendCmd.Flags().String("semester", "", "Semester (required)")
	attendCmd.Flags().Int("duration", 0, "Session duration in minutes (default from config)")
	attendCmd.Flags().Duration("interval", 0, "Recognition poll interval (default from config)")
	attendCmd.Flags().Bool("train", false, "Train the model for the class before starting")
}

func printMark(r recognition.Result) {
	fmt.Printf("%s  %-24s %-12s %-8s %5.1f%%\n",
		r.At.Format("15:04:05"), r.Name, r.Identifier, r.Status, r.Confidence*100)
}

func runAttend(cmd *cobra.Command, args []string) error {
	form := kiosk.AttendanceForm{
		TeacherID: mustGetString(cmd, "teacher"),
		SubjectID: mustGetString(cmd, "subject"),
		Section:   mustGetString(cmd, "section"),
		Semester:  mustGetString(cmd, "semester"),
	}.Normalize()
	if form.TeacherID == "" || form.SubjectID == "" || form.Section == "" || form.Semester == "" {
		return errors.New("--teacher, --subject, --section and --semester are required")
	}

	cfg := config.Load()
	settings := kiosk.SettingsFromConfig(cfg)
	settings.SessionDuration = intOverride(cmd, "duration", settings.SessionDuration)
	settings.RecognitionInterval = durationOverride(cmd, "interval", settings.RecognitionInterval)

	env, err := newKioskEnv(cfg, settings)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k := env.kiosk
	if err := k.OpenRecognition(); err != nil {
		return err
	}

	if mustGetBool(cmd, "train") {
		fmt.Printf("Training model for %s...\n", form.ClassName())
		result, err := k.Train(ctx, form.Section, form.Semester)
		if err != nil {
			return fmt.Errorf("training failed: %s", kiosk.Message(err))
		}
		fmt.Printf("Model trained successfully! %d students trained\n", result.StudentsTrained)
	}

	events := env.notes.Subscribe()

	session, err := k.StartAttendance(ctx, form)
	if err != nil {
		return errors.New(kiosk.Message(err))
	}

	fmt.Printf("Attendance session %s started for %s (%s, %d minutes)\n",
		session.ID, session.ClassName, session.SubjectID, settings.SessionDuration)
	fmt.Printf("Polling every %s. Press Ctrl+C to stop\n\n", settings.RecognitionInterval)

	waitForMarks(ctx, events, k.Loop().Active)

	if err := k.StopRecognition(); err != nil && !errors.Is(err, kiosk.ErrWrongPage) {
		return err
	}

	stats := k.Loop().Stats()
	fmt.Printf("\nRecognition stopped: %d ticks, %d marked, %d failed, %d skipped\n",
		stats.Ticks, stats.Matches, stats.Failures, stats.Dropped)
	return nil
}

// waitForMarks prints recognition events until ctx is done or the loop stops
// on its own (for example when the camera is lost).
func waitForMarks(ctx context.Context, events <-chan notify.Event, active func() bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case notify.EventRecognition:
				if r, ok := event.Data.(recognition.Result); ok {
					printMark(r)
				}
			case notify.EventNotification:
				if n, ok := event.Data.(notify.Notification); ok && n.Level == notify.LevelError {
					fmt.Printf("! %s\n", n.Message)
				}
				if !active() {
					return
				}
			}
		}
	}
}
