package pricer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/currency"
	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/options"
	"github.com/nekomatic-tf/nekopricer/internal/pricelist"
)

// Oracle maintains the key rate, the metal valuation of one key that every
// other item's pricing math depends on.
type Oracle struct {
	engine   *Engine
	external ExternalSource
	options  *options.Manager
	prices   *pricelist.Manager
}

func NewOracle(engine *Engine, external ExternalSource, opts *options.Manager, prices *pricelist.Manager) *Oracle {
	return &Oracle{engine: engine, external: external, options: opts, prices: prices}
}

// Refresh recomputes the key rate. With enforceKeyFallback set the external
// quote is used directly; otherwise the key is priced by the engine like any
// other item, folded to a metal-only quote using the previous rate. When
// nothing produces a rate and no previous rate exists the error is fatal:
// the process cannot price anything without one.
func (o *Oracle) Refresh(ctx context.Context) error {
	opts := o.options.Snapshot()
	item := domain.Item{Name: domain.KeyName, SKU: domain.KeySKU}

	if opts.EnforceKeyFallback {
		record, err := o.external.GetPrice(ctx, item)
		if err != nil {
			return o.keepPrevious(fmt.Errorf("failed to get fallback key price: %w", err))
		}
		record.Fallback = string(ReasonKeyFallbackEnforced)
		o.prices.SetKeyPrice(record)
		o.prices.UpdatePrice(record)
		slog.Info("Refreshed key price from fallback", "buy", record.Buy.Metal, "sell", record.Sell.Metal)
		return nil
	}

	record, err := o.engine.CalculatePrice(ctx, item, opts, 0)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			return o.keepPrevious(fmt.Errorf("failed to price key: %w", err))
		}
		slog.Warn("Key pricing rejected, using fallback", "reason", f.Reason)
		fallback, ferr := o.external.GetPrice(ctx, item)
		if ferr != nil {
			return o.keepPrevious(fmt.Errorf("failed to get fallback key price: %w", ferr))
		}
		fallback.Fallback = string(f.Reason)
		record = fallback
	}

	record, err = o.foldToMetal(record)
	if err != nil {
		return o.keepPrevious(err)
	}

	o.prices.SetKeyPrice(record)
	o.prices.UpdatePrice(record)
	slog.Info("Refreshed key price", "source", record.Source, "buy", record.Buy.Metal, "sell", record.Sell.Metal)
	return nil
}

// foldToMetal rewrites a key quote that contains a keys component into pure
// metal using the previous rate. A key priced in keys is circular otherwise.
func (o *Oracle) foldToMetal(record *domain.PriceRecord) (*domain.PriceRecord, error) {
	if record.Buy.Keys == 0 && record.Sell.Keys == 0 {
		return record, nil
	}

	previous := o.prices.KeyRateMetal()
	if previous == 0 {
		return nil, errors.New("key price contains keys and no previous rate exists to fold with")
	}

	buyValue, err := record.Buy.ToHalfScrap(previous)
	if err != nil {
		return nil, fmt.Errorf("failed to fold key buy price: %w", err)
	}
	sellValue, err := record.Sell.ToHalfScrap(previous)
	if err != nil {
		return nil, fmt.Errorf("failed to fold key sell price: %w", err)
	}

	folded := *record
	folded.Buy = currency.FromHalfScrap(buyValue, 0)
	folded.Sell = currency.FromHalfScrap(sellValue, 0)
	folded.Time = time.Now().Unix()
	return &folded, nil
}

// keepPrevious downgrades a refresh error to a warning when an older rate is
// still available to keep pricing on.
func (o *Oracle) keepPrevious(err error) error {
	if o.prices.KeyPrice() != nil {
		slog.Warn("Keeping previous key price", "error", err)
		return nil
	}
	return err
}
