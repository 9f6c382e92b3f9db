package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/dialogue"
	"github.com/callsense/callsense/pkg/recognizer"
)

var recognizeLoop bool

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Transcribe uploaded call recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := recognizer.NewSpeechRecognizer(ctx, cfg.Speech.LanguageCode, cfg.Speech.Model, cfg.Speech.CredentialsFile)
		if err != nil {
			return err
		}
		defer rec.Close()

		svc := dialogue.NewService(st, rec,
			cfg.Recognize.MaxConcurrent, cfg.Recognize.Retries, cfg.Recognize.RetryDelay)

		run := func(ctx context.Context) error {
			return forEachPortal(ctx, func(ctx context.Context, p config.PortalConfig) error {
				return svc.Run(ctx, p.Name)
			})
		}

		if !recognizeLoop {
			return run(ctx)
		}
		return loop(ctx, "recognize", cfg.Recognize.Interval, run)
	},
}

func init() {
	recognizeCmd.Flags().BoolVar(&recognizeLoop, "loop", false, "keep running on the configured interval")
	rootCmd.AddCommand(recognizeCmd)
}
