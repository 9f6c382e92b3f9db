package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/aggregate"
	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/pkg/anthropic"
	"github.com/callsense/callsense/pkg/summarizer"
)

var aggregateLoop bool

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Roll analyzed calls up into CRM entity descriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sum := summarizer.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		svc := aggregate.NewService(st, sum,
			cfg.Aggregate.MaxConcurrentEntities,
			cfg.Aggregate.MaxSummaryWords,
			cfg.Aggregate.Retries,
			cfg.Aggregate.RetryDelay)

		run := func(ctx context.Context) error {
			return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
				return svc.Run(ctx, p.Name)
			})
		}

		if !aggregateLoop {
			return run(ctx)
		}
		return loop(ctx, "aggregate", cfg.Aggregate.Interval, run)
	},
}

func init() {
	aggregateCmd.Flags().BoolVar(&aggregateLoop, "loop", false, "keep running on the configured interval")
	rootCmd.AddCommand(aggregateCmd)
}
