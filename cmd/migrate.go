package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the per-portal table sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
			return st.Migrate(ctx, p.Name)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
