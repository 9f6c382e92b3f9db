package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/config"
)

var syncCriteriaFile string

var syncCriteriaCmd = &cobra.Command{
	Use:   "sync-criteria",
	Short: "Load criterion groups, criteria and categories from a seed file",
	Long: `Provisions the analytics reference data the analyze and aggregate
stages run against. The seed file declares groups, criteria and
categories by name; re-running the sync refreshes prompts and flags
without renumbering criteria already referenced by analyzed calls.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seed, err := config.LoadCriteriaSeed(syncCriteriaFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
			return st.SyncCriteria(ctx, p.Name, seed)
		})
	},
}

func init() {
	syncCriteriaCmd.Flags().StringVar(&syncCriteriaFile, "file", "criteria.yaml", "criteria seed file (yaml or json)")
	rootCmd.AddCommand(syncCriteriaCmd)
}
