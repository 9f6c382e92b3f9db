package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/analyze"
	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/pkg/anthropic"
	"github.com/callsense/callsense/pkg/summarizer"
)

var analyzeLoop bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify calls and evaluate their criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sum := summarizer.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		svc := analyze.NewService(st, sum,
			cfg.Analyze.MaxConcurrent, cfg.Analyze.Retries, cfg.Analyze.RetryDelay)

		run := func(ctx context.Context) error {
			return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
				return svc.Run(ctx, p.Name)
			})
		}

		if !analyzeLoop {
			return run(ctx)
		}
		return loop(ctx, "analyze", cfg.Analyze.Interval, run)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeLoop, "loop", false, "keep running on the configured interval")
	rootCmd.AddCommand(analyzeCmd)
}
