package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an XLSX report of analyzed calls and entity rollups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dir := exportOut
		if dir == "" {
			dir = cfg.Export.Dir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "creating export directory %s", dir)
		}

		svc := export.NewService(st)
		return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
			return svc.Export(ctx, p.Name, filepath.Join(dir, p.Name+".xlsx"))
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (default: export.dir from config)")
	rootCmd.AddCommand(exportCmd)
}
