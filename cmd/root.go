package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	captureDir string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "A face recognition attendance kiosk",
	Long: `Face Attendance is a kiosk client for a face recognition attendance API.
It registers students from camera snapshots, trains the recognition model
and marks attendance by polling the camera during a class session.

Run "face-attendance serve" for the touch panel API, or use the one-shot
commands to run the same flows from a terminal.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save API responses for testing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
