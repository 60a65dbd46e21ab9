package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newImportanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "importance MODEL",
		Short: "Show the feature importances of a trained model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().FeatureImportance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FEATURE\tIMPORTANCE")
			for _, fi := range resp.FeatureImportance {
				fmt.Fprintf(tw, "%s\t%.4f\n", fi.Feature, fi.Importance)
			}
			return tw.Flush()
		},
	}
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the serving strategy and model availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().ModelInfo(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strategy: %s\n\n", resp.Strategy)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tAVAILABLE\tVERSION\tTRAINED\tTEST RMSE\tREASON")
			for _, m := range resp.Models {
				trained, rmse := "-", "-"
				if m.TrainedAt != nil {
					trained = m.TrainedAt.Format(time.RFC3339)
				}
				if m.Metrics != nil {
					rmse = fmt.Sprintf("%.4f", m.Metrics.TestRMSE)
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n", m.Name, m.Available, dash(m.Version), trained, rmse, dash(m.Reason))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response")
	return cmd
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train MODEL",
		Short: "Retrain a model on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Train(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "history STUDENT_ID",
		Short: "List stored predictions for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, to time.Time
			if since > 0 {
				to = time.Now()
				from = to.Add(-since)
			}
			resp, err := opts.client().History(cmd.Context(), args[0], from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "Look back this far (server default when zero)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
