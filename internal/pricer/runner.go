package pricer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/options"
	"github.com/nekomatic-tf/nekopricer/internal/pricelist"
)

// SchemaResolver resolves item names to SKUs in bulk at pass start.
type SchemaResolver interface {
	ToSKUBulk(ctx context.Context, names []string) ([]string, error)
}

// Runner drives one full pricing pass over the tracked item set.
type Runner struct {
	engine   *Engine
	external ExternalSource
	schema   SchemaResolver
	options  *options.Manager
	prices   *pricelist.Manager
}

func NewRunner(engine *Engine, external ExternalSource, schema SchemaResolver, opts *options.Manager, prices *pricelist.Manager) *Runner {
	return &Runner{engine: engine, external: external, schema: schema, options: opts, prices: prices}
}

// Run prices every tracked item in sequence. Options and the key rate are
// snapshotted once so the whole pass works against a consistent view. The
// key itself is skipped; its price is owned by the oracle.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()
	opts := r.options.Snapshot()
	keyRateMetal := r.prices.KeyRateMetal()
	if keyRateMetal == 0 {
		return errors.New("no key rate available, cannot run a pricing pass")
	}

	r.prices.Freeze()

	names := r.prices.TrackedItems()
	skus, err := r.schema.ToSKUBulk(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to resolve item skus: %w", err)
	}

	var stats pricelist.Statistics
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := domain.Item{Name: name, SKU: skus[i]}
		if item.SKU == domain.KeySKU {
			continue
		}
		stats.Total++
		r.priceItem(ctx, item, opts, keyRateMetal, &stats)
	}

	if err := r.prices.WritePricelist(ctx); err != nil {
		return err
	}

	updated, skipped := r.prices.ChangedSince()
	slog.Info("Finished pricing pass",
		"total", stats.Total,
		"custom", stats.Custom,
		"fallback", stats.Fallback,
		"failed", stats.Failed,
		"updated", updated,
		"skipped", skipped,
		"duration", time.Since(started).Round(time.Millisecond))
	return nil
}

// priceItem prices one item, routing engine rejections to the fallback
// quote. When the fallback path fails too, the stored price stays as it is.
func (r *Runner) priceItem(ctx context.Context, item domain.Item, opts options.Options, keyRateMetal float64, stats *pricelist.Statistics) {
	record, err := r.engine.CalculatePrice(ctx, item, opts, keyRateMetal)
	if err == nil {
		stats.Custom++
		r.prices.UpdatePrice(record)
		return
	}

	reason := FailureReason(err)
	slog.Debug("Falling back to external price", "item", item.Name, "sku", item.SKU, "reason", reason)

	fallback, ferr := r.external.GetPrice(ctx, item)
	if ferr != nil {
		stats.Failed++
		slog.Warn("Failed to price item, keeping stored price", "item", item.Name, "sku", item.SKU, "reason", reason, "error", ferr)
		return
	}
	fallback.Fallback = reason
	stats.Fallback++
	r.prices.UpdatePrice(fallback)
}
