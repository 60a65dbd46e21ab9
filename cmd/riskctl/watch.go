package main

import (
	"fmt"
	"strings"

	"academic-risk/internal/client"
	"academic-risk/internal/dashboard"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var snapshots bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream AT_RISK alerts from the service dashboard until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			alerts := make(chan dashboard.Alert, 16)
			errs := make(chan error, 4)
			var snaps chan dashboard.Summary
			if snapshots {
				snaps = make(chan dashboard.Summary, 4)
			}

			done := make(chan error, 1)
			go func() { done <- client.NewAlertStream(dashboardStreamURL(opts.url)).Run(ctx, alerts, snaps, errs) }()

			out := cmd.OutOrStdout()
			for {
				select {
				case a := <-alerts:
					fmt.Fprintf(out, "%s  %-10s %-8s score=%.2f model=%s\n",
						a.At.Format("15:04:05"), a.StudentID, a.Kind, a.Score, a.ModelVersion)
				case s := <-snaps:
					fmt.Fprintf(out, "%s  snapshot total=%d alerts=%d clients=%d\n",
						s.Timestamp.Format("15:04:05"), s.Total, len(s.RecentAlerts), s.Clients)
				case err := <-errs:
					log.Warn().Err(err).Msg("Alert stream interrupted")
				case <-done:
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "Also print periodic summary snapshots")
	return cmd
}

// dashboardStreamURL maps the service base URL to its WebSocket endpoint.
func dashboardStreamURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/dashboard/ws"
}
