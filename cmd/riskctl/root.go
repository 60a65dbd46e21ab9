package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"academic-risk/internal/client"
	"academic-risk/internal/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	url      string
	timeout  time.Duration
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Command line client for the academic risk prediction service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(opts.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", opts.logLevel, err)
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultURL := os.Getenv(common.EnvServiceURL)
	if defaultURL == "" {
		defaultURL = common.DefaultServiceURL
	}
	root.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "Base URL of the risk service (env "+common.EnvServiceURL+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newPredictCmd(opts),
		newBatchCmd(opts),
		newImportanceCmd(opts),
		newInfoCmd(opts),
		newTrainCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.url, o.timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFeatures turns name=value pairs into a feature map.
func parseFeatures(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("feature %q: expected name=value", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
