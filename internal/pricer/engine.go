package pricer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/currency"
	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/listing"
	"github.com/nekomatic-tf/nekopricer/internal/options"

	"github.com/shopspring/decimal"
)

// ListingSource is what the engine needs from the listing store.
type ListingSource interface {
	ListingsByIntent(ctx context.Context, item, intent string) ([]listing.Listing, error)
}

// ExternalSource provides the fallback quote used for the deviation gate
// and as the caller's fallback path.
type ExternalSource interface {
	GetPrice(ctx context.Context, item domain.Item) (*domain.PriceRecord, error)
}

// Engine converts raw listings into a validated price through the
// filter -> strategy -> safety-check pipeline.
type Engine struct {
	store    ListingSource
	external ExternalSource
}

func NewEngine(store ListingSource, external ExternalSource) *Engine {
	return &Engine{store: store, external: external}
}

// CalculatePrice prices one item against the listing book under a key rate
// snapshot taken by the caller at pass start. Rejections come back as
// *Failure; the caller routes those to the external fallback quote.
func (e *Engine) CalculatePrice(ctx context.Context, item domain.Item, opts options.Options, keyRateMetal float64) (*domain.PriceRecord, error) {
	buyListings, err := e.store.ListingsByIntent(ctx, item.Name, listing.IntentBuy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch buy listings: %w", err)
	}
	sellListings, err := e.store.ListingsByIntent(ctx, item.Name, listing.IntentSell)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sell listings: %w", err)
	}

	po := opts.PricingOptions

	// Stage 1 - filtering.
	buyListings = filterListings(buyListings, &opts, po.BuyHumanFallback)
	sellListings = filterListings(sellListings, &opts, po.SellHumanFallback)

	if !opts.IsPaint(item.Name) {
		buyListings = dropBlockedAttributes(buyListings, opts.BlockedAttributes)
		sellListings = dropBlockedAttributes(sellListings, opts.BlockedAttributes)
	}

	// Best buy offer first, cheapest sell offer first.
	sort.SliceStable(buyListings, func(i, j int) bool {
		return buyListings[i].ValueHalfScrap(keyRateMetal) > buyListings[j].ValueHalfScrap(keyRateMetal)
	})
	sort.SliceStable(sellListings, func(i, j int) bool {
		return sellListings[i].ValueHalfScrap(keyRateMetal) < sellListings[j].ValueHalfScrap(keyRateMetal)
	})

	// Stage 2 - listing count checks.
	if len(buyListings) == 0 {
		return nil, fail(ReasonNoBuyListings)
	}
	if len(sellListings) == 0 {
		return nil, fail(ReasonNoSellListings)
	}
	if po.BuyLimitStrict && len(buyListings) < po.BuyLimit {
		return nil, fail(ReasonNotEnoughBuy)
	}
	if po.SellLimitStrict && len(sellListings) < po.SellLimit {
		return nil, fail(ReasonNotEnoughSell)
	}

	external, err := e.external.GetPrice(ctx, item)
	if err != nil || external == nil {
		return nil, fail(ReasonExternalUnavailable)
	}

	// Stage 3 - strategy cascade.
	in := &cascadeInput{
		buyListings:  buyListings,
		sellListings: sellListings,
		buyValues:    listingValues(buyListings, keyRateMetal),
		sellValues:   listingValues(sellListings, keyRateMetal),
		buyLimit:     po.BuyLimit,
		sellLimit:    po.SellLimit,
	}
	c, strategyName, valid := runCascade(in, po)
	if !valid {
		slog.Warn("No pricing strategy validated", "item", item.Name, "sku", item.SKU)
	}

	// Stage 4 - safety checks.
	if c.buy > c.sell {
		return nil, fail(ReasonBuyAboveSell)
	}
	if c.buy == c.sell {
		return nil, fail(ReasonBuyEqualsSell)
	}
	if c.buy == 0 {
		return nil, fail(ReasonBuyZero)
	}
	if c.sell == 0 {
		return nil, fail(ReasonSellZero)
	}
	if c.buy < 0 {
		return nil, fail(ReasonBuyNegative)
	}
	if c.sell < 0 {
		return nil, fail(ReasonSellNegative)
	}

	buy := currency.FromHalfScrap(c.buy, 0)
	sell := currency.FromHalfScrap(c.sell, 0)
	if buy.Equal(sell) {
		return nil, fail(ReasonEqualAfterConversion)
	}

	if item.SKU != domain.KeySKU {
		// Everything except the key is quoted in keys and metal. The
		// conversion can collapse or invert values that were distinct in
		// half-scrap, so re-check both directions afterwards.
		buy = currency.FromHalfScrap(c.buy, keyRateMetal)
		sell = currency.FromHalfScrap(c.sell, keyRateMetal)
		if buy.Equal(sell) {
			return nil, fail(ReasonEqualAfterConversion)
		}

		buyValue, err := buy.ToHalfScrap(keyRateMetal)
		if err != nil {
			return nil, fmt.Errorf("failed to value buy price: %w", err)
		}
		sellValue, err := sell.ToHalfScrap(keyRateMetal)
		if err != nil {
			return nil, fmt.Errorf("failed to value sell price: %w", err)
		}
		if buyValue == sellValue {
			return nil, fail(ReasonEqualAfterConversion)
		}
		if buyValue > sellValue {
			return nil, fail(ReasonCrossedAfterConversion)
		}
		if buy.Keys == sell.Keys && buy.Metal > sell.Metal {
			return nil, fail(ReasonCrossedAfterConversion)
		}
	}

	// Stage 5 - deviation gate against the fallback quote.
	fallbackBuy, err := external.Buy.ToHalfScrap(keyRateMetal)
	if err != nil {
		return nil, fail(ReasonExternalUnavailable)
	}
	fallbackSell, err := external.Sell.ToHalfScrap(keyRateMetal)
	if err != nil {
		return nil, fail(ReasonExternalUnavailable)
	}

	buyDiff := percentageDifference(fallbackBuy, c.buy)
	sellDiff := percentageDifference(fallbackSell, c.sell)
	if buyDiff.GreaterThan(decimal.NewFromFloat(opts.MaxPercentageDifferences.Buy)) {
		return nil, fail(ReasonBuyingTooHigh)
	}
	if sellDiff.LessThan(decimal.NewFromFloat(opts.MaxPercentageDifferences.Sell)) {
		return nil, fail(ReasonSellingTooLow)
	}

	return &domain.PriceRecord{
		Name:     item.Name,
		SKU:      item.SKU,
		Source:   domain.SourceOwn,
		Time:     time.Now().Unix(),
		Buy:      buy,
		Sell:     sell,
		Strategy: &domain.Strategy{Type: strategyName, Valid: valid},
	}, nil
}

// filterListings applies the per-side exclusion stages: excluded steam ids,
// the bot-only filter, excluded description phrases and foreign settlement
// currencies.
func filterListings(listings []listing.Listing, opts *options.Options, humanFallback bool) []listing.Listing {
	kept := listings[:0:0]
	for _, l := range listings {
		if opts.HasExcludedSteamID(l.SteamID) {
			continue
		}
		if l.Currencies.Foreign() {
			continue
		}
		if hasExcludedPhrase(l.Details, opts.ExcludedListingDescriptions) {
			continue
		}
		kept = append(kept, l)
	}

	if opts.PricingOptions.OnlyBots {
		bots := kept[:0:0]
		for _, l := range kept {
			if l.FromBot() {
				bots = append(bots, l)
			}
		}
		// Use the bot-only view when it leaves the side populated; the
		// human-fallback toggle keeps humans in play for thin markets.
		if len(bots) > 0 && !humanFallback {
			return bots
		}
	}
	return kept
}

func hasExcludedPhrase(details string, phrases []string) bool {
	if details == "" {
		return false
	}
	lower := strings.ToLower(details)
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func dropBlockedAttributes(listings []listing.Listing, blocked []options.BlockedAttribute) []listing.Listing {
	kept := listings[:0:0]
	for _, l := range listings {
		bad := false
		for _, attr := range blocked {
			if l.HasAttribute(attr.Defindex) {
				bad = true
				break
			}
		}
		if !bad {
			kept = append(kept, l)
		}
	}
	return kept
}

func listingValues(listings []listing.Listing, keyRateMetal float64) []int64 {
	values := make([]int64, len(listings))
	for i := range listings {
		values[i] = listings[i].ValueHalfScrap(keyRateMetal)
	}
	return values
}

// percentageDifference is (computed - fallback) / |fallback| * 100, or zero
// when there is no fallback value to compare against.
func percentageDifference(fallback, computed int64) decimal.Decimal {
	if fallback == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(computed - fallback).
		Div(decimal.NewFromInt(fallback).Abs()).
		Mul(decimal.NewFromInt(100))
}
