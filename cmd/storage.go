package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/travel-requests/internal/storage/sqlstore"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Maintain the local session and cache storage",
}

var purgeEvery time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cookies and cache entries from sql storage",
	Long:  `Delete expired entries once, or keep doing it on an interval with --every until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		lg := logger.LoggerWrapper()

		if _, err := sqlstore.SQLDriverName(cfg.Storage.Driver); err != nil {
			return fmt.Errorf("purge only applies to sql storage, %s expires entries itself", cfg.Storage.Driver)
		}

		store, err := sqlstore.Open(ctx, sqlstore.Options{
			Driver:      cfg.Storage.Driver,
			Source:      cfg.Storage.Source,
			AutoMigrate: cfg.Storage.AutoMigrate,
		}, lg)
		if err != nil {
			return err
		}
		defer store.Close()

		purge := func() error {
			removed, err := store.PurgeExpired(ctx)
			if err != nil {
				return fmt.Errorf("failed to purge expired entries: %w", err)
			}
			lg.Info("expired entries purged", "removed", removed)
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired entries removed\n", removed)
			return nil
		}

		if err := purge(); err != nil || purgeEvery <= 0 {
			return err
		}

		lg.Info("purge worker is running. Press Ctrl+C to stop.", "every", purgeEvery)
		ticker := time.NewTicker(purgeEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				lg.Info("received signal, shutting down purge worker")
				return nil
			case <-ticker.C:
				if err := purge(); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					lg.Error("purge failed", "error", err)
				}
			}
		}
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeEvery, "every", 0, "repeat on this interval until interrupted")
	storageCmd.AddCommand(purgeCmd)
}
