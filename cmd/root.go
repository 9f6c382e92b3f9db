package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "callsense",
	Short: "Call recording analytics pipeline",
	Long:  "Ingests CRM portal call recordings, transcribes them, evaluates quality criteria via Claude and rolls the results up per CRM entity.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// portalFlag limits a command to one portal; empty means every
// configured portal.
var portalFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&portalFlag, "portal", "", "portal name (default: all configured portals)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// selectedPortals resolves the --portal flag against the configuration.
func selectedPortals() ([]config.PortalConfig, error) {
	if portalFlag == "" {
		if len(cfg.Portals) == 0 {
			return nil, eris.New("no portals configured")
		}
		return cfg.Portals, nil
	}
	p := cfg.Portal(portalFlag)
	if p == nil {
		return nil, eris.New(fmt.Sprintf("unknown portal %q", portalFlag))
	}
	return []config.PortalConfig{*p}, nil
}

// openStore connects to PostgreSQL using the configured pool settings.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewPostgresStore(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	if err != nil {
		return nil, eris.Wrap(err, "opening store")
	}
	return st, nil
}

// forEachPortal runs fn once per selected portal, logging failures and
// moving on so one portal cannot block the rest.
func forEachPortal(ctx context.Context, fn func(ctx context.Context, p config.PortalConfig) error) error {
	portals, err := selectedPortals()
	if err != nil {
		return err
	}

	failed := 0
	for _, p := range portals {
		if err := fn(ctx, p); err != nil {
			failed++
			zap.L().Error("portal failed", zap.String("portal", p.Name), zap.Error(err))
		}
	}
	if failed == len(portals) {
		return eris.New("all portals failed")
	}
	return nil
}
