package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spelhyllan/spelhyllan/internal/app"
	"github.com/spelhyllan/spelhyllan/internal/config"
	"github.com/spelhyllan/spelhyllan/internal/log"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Scrape the category page and rebuild the inventory",
	Long: `Seed scrapes product listings from the configured category page,
asks the model to complete them into full item records, embeds each
record, and replaces the current inventory with the result.

The existing inventory is only cleared after the scrape and the
enrichment both produced data.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo})
	logger.Info("seeding inventory", "source", cfg.ScrapeURL)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	seeder, err := a.NewSeeder()
	if err != nil {
		return fmt.Errorf("creating seeder: %w", err)
	}

	inserted, err := seeder.Run(ctx)
	if err != nil {
		return fmt.Errorf("seeding inventory: %w", err)
	}

	logger.Info("inventory seeded", "items", inserted)
	return nil
}
