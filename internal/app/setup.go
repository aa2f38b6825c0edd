// Package app wires configuration, storage, Genkit, and the agent into
// one bundle. Everything the binaries need comes out of Setup; nothing
// lives in package-level globals.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/spelhyllan/spelhyllan/db"
	"github.com/spelhyllan/spelhyllan/internal/agent"
	"github.com/spelhyllan/spelhyllan/internal/config"
	"github.com/spelhyllan/spelhyllan/internal/inventory"
	"github.com/spelhyllan/spelhyllan/internal/scrape"
	"github.com/spelhyllan/spelhyllan/internal/seed"
	"github.com/spelhyllan/spelhyllan/internal/thread"
	"github.com/spelhyllan/spelhyllan/internal/tools"
)

// App holds the assembled application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Inventory *inventory.Store
	Threads   *thread.Store
	Agent     *agent.Agent

	cleanup []func()
}

// Setup builds the application from configuration. The GEMINI_API_KEY
// environment variable must be set; the googlegenai plugin reads it
// itself but checking here gives a clearer startup error.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY must be set")
	}

	a := &App{Config: cfg, Logger: logger}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.cleanup = append(a.cleanup, pool.Close)

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(a.Genkit, cfg.EmbedderModel)

	a.Inventory = inventory.New(pool, logger)
	a.Threads = thread.New(pool, logger)

	lookup, err := tools.NewLookup(a.Inventory, tools.NewGenkitEmbedder(embedder), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating lookup tool: %w", err)
	}
	lookupRef, err := tools.Register(a.Genkit, lookup)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("registering lookup tool: %w", err)
	}

	a.Agent, err = agent.New(agent.Config{
		Genkit:    a.Genkit,
		ModelName: cfg.ModelName,
		Lookup:    lookup,
		LookupRef: lookupRef,
		Threads:   a.Threads,
		Retry: agent.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		// Free-tier Gemini allows ~15 requests per minute; stay under.
		Limiter:  rate.NewLimiter(rate.Every(5*time.Second), 3),
		MaxTurns: cfg.MaxTurns,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	logger.Info("application ready",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"db", cfg.PostgresDBName,
	)
	return a, nil
}

// NewSeeder builds the seeding pipeline on top of an assembled App.
func (a *App) NewSeeder() (*seed.Seeder, error) {
	scraper, err := scrape.New(a.Config.ScrapeURL, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating scraper: %w", err)
	}

	embedder := googlegenai.GoogleAIEmbedder(a.Genkit, a.Config.EmbedderModel)
	return seed.New(
		scraper,
		seed.NewGenkitGenerator(a.Genkit, a.Config.ModelName),
		tools.NewGenkitEmbedder(embedder),
		a.Inventory,
		a.Logger,
	)
}

// Close releases resources in reverse setup order.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// providePool migrates the schema and opens a tuned connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
