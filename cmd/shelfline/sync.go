package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfline/shelfline/internal/config"
	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/reconciler"
	"github.com/shelfline/shelfline/internal/remote"
	"github.com/shelfline/shelfline/internal/store"
)

var syncJSONOutput bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush pending local changes without running the server",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Sync.Offline {
		return fmt.Errorf("cannot sync: offline mode is enabled")
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	client := remote.NewHTTPClient(
		cfg.Remote.BaseURL,
		cfg.Remote.Token,
		time.Duration(cfg.Remote.Timeout),
		cfg.Remote.PageSize,
	)

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("remote service unreachable: %w", err)
	}

	rec := reconciler.New(db, client, connectivity.NewManual(true))
	stats, err := rec.FlushPending(ctx)
	if err != nil {
		return err
	}

	if syncJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"created":     stats.Created,
			"updated":     stats.Updated,
			"deleted":     stats.Deleted,
			"duration_ms": stats.Duration.Milliseconds(),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Synced: %d created, %d updated, %d deleted (%s)\n",
		stats.Created, stats.Updated, stats.Deleted, stats.Duration.Round(time.Millisecond))
	return nil
}
