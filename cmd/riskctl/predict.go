package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"academic-risk/internal/api"

	"github.com/spf13/cobra"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a single student",
	}

	var (
		features []string
		semester int
	)

	subject := &cobra.Command{
		Use:   "subject STUDENT_ID",
		Short: "Predict the final subject score and risk tier",
		Example: `  riskctl predict subject S1024 \
    -f attendance_percentage=82 -f best_of_two_internals=19 \
    -f assignment_marks=16 -f behavior_score=8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := parseFeatures(features)
			if err != nil {
				return err
			}
			resp, err := opts.client().PredictSubject(cmd.Context(), args[0], fs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	subject.Flags().StringArrayVarP(&features, "feature", "f", nil, "Feature as name=value (repeatable)")

	sem := &cobra.Command{
		Use:   "semester STUDENT_ID",
		Short: "Predict the semester SGPA and risk tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := parseFeatures(features)
			if err != nil {
				return err
			}
			resp, err := opts.client().PredictSemester(cmd.Context(), args[0], semester, fs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	sem.Flags().StringArrayVarP(&features, "feature", "f", nil, "Feature as name=value (repeatable)")
	sem.Flags().IntVar(&semester, "semester", 0, "Semester number (1-8)")

	cmd.AddCommand(subject, sem)
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var predictionType string

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Score a JSON array of students read from FILE (- for stdin)",
		Long: `Reads a JSON array of {"student_id", "features", "prediction_type"} objects
and scores them in one request. Items without a prediction_type use --type.
Per-item failures are reported in the output; the command only fails when the
request itself is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			students, err := readStudents(args[0])
			if err != nil {
				return err
			}
			resp, err := opts.client().Batch(cmd.Context(), predictionType, students)
			if err != nil {
				return err
			}
			if resp.FailedCount > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d predictions failed\n", resp.FailedCount, resp.TotalCount)
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&predictionType, "type", "t", "subject", "Default prediction type: subject or semester")
	return cmd
}

func readStudents(path string) ([]api.BatchStudent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var students []api.BatchStudent
	if err := json.Unmarshal(data, &students); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("batch file %s holds no students", path)
	}
	return students, nil
}
