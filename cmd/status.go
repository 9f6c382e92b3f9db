package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many calls sit in each pipeline stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		order := []model.CallStatus{
			model.StatusUploaded,
			model.StatusRecognized,
			model.StatusEmpty,
			model.StatusFixed,
			model.StatusReady,
		}

		return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
			counts, err := st.StatusCounts(ctx, p.Name)
			if err != nil {
				return err
			}
			fmt.Printf("%s:\n", p.Name)
			total := 0
			for _, s := range order {
				fmt.Printf("  %-12s %d\n", s, counts[s])
				total += counts[s]
			}
			fmt.Printf("  %-12s %d\n", "total", total)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
