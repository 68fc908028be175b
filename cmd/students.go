package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/config"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List registered students",
	Long: `List every student registered with the attendance API.

Examples:
  face-attendance students
  face-attendance students --section A
  face-attendance students --json`,
	Args: cobra.NoArgs,
	RunE: runStudents,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.Flags().Bool("json", false, "Output as JSON")
	studentsCmd.Flags().String("section", "", "Only show students of this section")
}

// filterStudents keeps the students of one section. An empty section keeps all.
func filterStudents(students []backend.Student, section string) []backend.Student {
	if section == "" {
		return students
	}
	var out []backend.Student
	for _, s := range students {
		if s.Section == section {
			out = append(out, s)
		}
	}
	return out
}

func runStudents(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	section := mustGetString(cmd, "section")

	cfg := config.Load()
	api, err := newBackend(cfg)
	if err != nil {
		return err
	}

	students, err := api.ListStudents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch students: %w", err)
	}
	students = filterStudents(students, section)

	sort.SliceStable(students, func(i, j int) bool {
		return students[i].EnrollmentNumber < students[j].EnrollmentNumber
	})

	if jsonOutput {
		if students == nil {
			students = []backend.Student{}
		}
		return outputJSON(students)
	}

	if len(students) == 0 {
		fmt.Println("No students found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENROLLMENT\tNAME\tSECTION\tSEMESTER\tBRANCH\tEMAIL")
	fmt.Fprintln(w, "----------\t----\t-------\t--------\t------\t-----")
	for _, s := range students {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.EnrollmentNumber, s.Name, s.Section, s.Semester, s.Branch, s.Email)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(students))
	return nil
}
