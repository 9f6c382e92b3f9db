package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/ingest"
	"github.com/callsense/callsense/internal/media"
	"github.com/callsense/callsense/pkg/portal"
	"github.com/callsense/callsense/pkg/storage"
)

var ingestLoop bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Discover and download new call recordings",
	Long:  "Lists the portal's recent calls, downloads recordings that are not yet stored, uploads them to cloud storage and persists call records for recognition.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		uploader, err := storage.NewGCSUploader(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsFile)
		if err != nil {
			return err
		}
		defer uploader.Close()

		prober := media.NewProber()

		run := func(ctx context.Context) error {
			return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
				svc := ingest.NewService(st,
					portal.NewClient(p.BaseURL, p.UserID, p.Token),
					uploader, prober,
					ingest.Options{
						Portal:      p.Name,
						DaysBack:    p.DaysBack,
						DownloadDir: cfg.Ingest.DownloadDir,
						Downloads:   cfg.Ingest.MaxConcurrentDownloads,
						Uploads:     cfg.Ingest.MaxConcurrentUploads,
						Retries:     cfg.Ingest.Retries,
						RetryDelay:  cfg.Ingest.RetryDelay,
					})
				_, err := svc.RunCycle(ctx)
				return err
			})
		}

		if !ingestLoop {
			return run(ctx)
		}
		return loop(ctx, "ingest", cfg.Ingest.Interval, run)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestLoop, "loop", false, "keep running on the configured interval")
	rootCmd.AddCommand(ingestCmd)
}

// loop re-runs fn on a fixed interval until the context is cancelled.
// A failed pass is logged and the loop continues.
func loop(ctx context.Context, stage string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil {
			zap.L().Error("pass failed", zap.String("stage", stage), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
