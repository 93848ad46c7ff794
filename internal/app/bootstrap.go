// Package app wires the components together and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/config"
	"github.com/nekomatic-tf/nekopricer/internal/fallback"
	"github.com/nekomatic-tf/nekopricer/internal/infra"
	"github.com/nekomatic-tf/nekopricer/internal/ingest"
	"github.com/nekomatic-tf/nekopricer/internal/options"
	"github.com/nekomatic-tf/nekopricer/internal/pricelist"
	"github.com/nekomatic-tf/nekopricer/internal/pricer"
	"github.com/nekomatic-tf/nekopricer/internal/schema"
	"github.com/nekomatic-tf/nekopricer/internal/storage"
)

// App owns every long-lived component of the pricer process.
type App struct {
	cfg *config.Config

	listings *storage.ListingStore
	objects  storage.ObjectStore
	options  *options.Manager
	prices   *pricelist.Manager
	external *fallback.Source
	oracle   *pricer.Oracle
	runner   *pricer.Runner
	ingestor *ingest.EventIngestor
	crawler  *ingest.Crawler
}

// New builds the component graph and loads all persisted state. The process
// is not viable without a key rate, so the first oracle refresh happens here
// and its failure is fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := infra.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)
	slog.Info("Starting", "app", cfg.App.Name, "version", cfg.App.Version)

	objects, err := storage.NewMinioStore(ctx, cfg.Minio)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the object store: %w", err)
	}

	listings, err := storage.NewListingStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open the listing store: %w", err)
	}

	opts := options.NewManager(objects)
	if err := opts.Load(ctx); err != nil {
		return nil, err
	}

	prices := pricelist.NewManager(objects)
	if err := prices.Load(ctx); err != nil {
		return nil, err
	}

	pricesTF := fallback.NewPricesTFClient(cfg.PricesTF.APIURL)
	external := fallback.NewSource(cfg.Autobot.URL, pricesTF, objects)
	if err := external.Refresh(ctx); err != nil {
		slog.Warn("External pricelist unavailable, per-item quotes only", "error", err)
	}

	schemaClient := schema.NewClient(cfg.Autobot.SchemaURL)
	engine := pricer.NewEngine(listings, external)
	oracle := pricer.NewOracle(engine, external, opts, prices)
	runner := pricer.NewRunner(engine, external, schemaClient, opts, prices)

	if err := oracle.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("no key rate available on startup: %w", err)
	}

	ingestor := ingest.NewEventIngestor(cfg.BackpackTF.WebsocketURL, listings, prices)
	crawler := ingest.NewCrawler(
		cfg.BackpackTF.SnapshotURL,
		cfg.BackpackTF.AccessToken,
		listings,
		prices,
		infra.NewRateLimiter(1, 1),
	)

	return &App{
		cfg:      cfg,
		listings: listings,
		objects:  objects,
		options:  opts,
		prices:   prices,
		external: external,
		oracle:   oracle,
		runner:   runner,
		ingestor: ingestor,
		crawler:  crawler,
	}, nil
}

// Run starts the ingestion loops and periodic tasks, then blocks until the
// context is cancelled and every component has wound down.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.ingestor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.crawler.Run(ctx)
	}()

	intervals := a.options.Snapshot().Intervals
	tasks := []*infra.PeriodicTask{
		infra.NewPeriodicTask("key-refresh", time.Duration(intervals.Key)*time.Second, func(ctx context.Context) {
			if err := a.oracle.Refresh(ctx); err != nil {
				slog.Error("Failed to refresh key price", "error", err)
			}
		}),
		infra.NewPeriodicTask("pricing-pass", time.Duration(intervals.Price)*time.Second, func(ctx context.Context) {
			// Pick up operator edits to options.json before each pass.
			if err := a.options.Load(ctx); err != nil {
				slog.Error("Failed to reload options", "error", err)
			}
			if err := a.runner.Run(ctx); err != nil {
				slog.Error("Pricing pass failed", "error", err)
			}
		}),
		infra.NewPeriodicTask("external-pricelist", time.Duration(intervals.Pricelist)*time.Second, func(ctx context.Context) {
			if err := a.external.Refresh(ctx); err != nil {
				slog.Error("Failed to refresh external pricelist", "error", err)
			}
		}),
	}
	for _, task := range tasks {
		task.Start(ctx, true)
	}

	<-ctx.Done()
	slog.Info("Shutting down")

	for _, task := range tasks {
		task.Stop()
	}
	wg.Wait()

	if err := a.listings.Close(); err != nil {
		slog.Error("Failed to close the listing store", "error", err)
	}
	slog.Info("Shutdown complete")
	return nil
}
