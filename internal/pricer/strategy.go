package pricer

import (
	"math"

	"github.com/nekomatic-tf/nekopricer/internal/listing"
	"github.com/nekomatic-tf/nekopricer/internal/options"
)

// Strategy names, in cascade priority order.
const (
	StrategyCut      = "cut"
	StrategySnipping = "snipping"
	StrategyMatching = "matching"
	StrategyRound    = "round"
	StrategyBackoff  = "backoff"
	StrategyFallback = "fallback"
)

// The cascade narrows a spread only when there is room to move inside it.
// Below this many half-scrap the sides are too close to adjust.
const minSpread = 2

// candidate is a buy/sell pair in half-scrap being threaded through the
// cascade. A strategy may update the candidate even when it fails to
// validate; the backoff strategy builds on whatever came before it.
type candidate struct {
	buy  int64
	sell int64
}

// cascadeInput is the filtered, sorted listing data a strategy works on.
// Buy values are sorted best-first (descending), sell values ascending.
type cascadeInput struct {
	buyListings  []listing.Listing
	sellListings []listing.Listing
	buyValues    []int64
	sellValues   []int64
	buyLimit     int
	sellLimit    int
}

// strategyStep is one evaluator in the cascade. eval returns the updated
// candidate and whether the strategy validated.
type strategyStep struct {
	name    string
	enabled func(po options.PricingOptions) bool
	eval    func(in *cascadeInput, c candidate) (candidate, bool)
}

// cascade lists the strategies in fixed priority order; the first one that
// validates wins.
var cascade = []strategyStep{
	{
		name:    StrategyCut,
		enabled: func(po options.PricingOptions) bool { return po.AllowCutting },
		eval:    evalCut,
	},
	{
		name:    StrategySnipping,
		enabled: func(po options.PricingOptions) bool { return po.AllowSnipping },
		eval:    evalSnip,
	},
	{
		name:    StrategyMatching,
		enabled: func(po options.PricingOptions) bool { return po.AllowMatching },
		eval:    evalMatch,
	},
	{
		name:    StrategyRound,
		enabled: func(po options.PricingOptions) bool { return po.AllowRounding },
		eval:    evalRound,
	},
	{
		name:    StrategyBackoff,
		enabled: func(po options.PricingOptions) bool { return po.AllowBacking },
		eval:    evalBackoff,
	},
}

// runCascade tries each enabled strategy in order and returns the winning
// candidate and strategy name. When nothing validates the last candidate is
// returned with StrategyFallback so the caller can inspect it.
func runCascade(in *cascadeInput, po options.PricingOptions) (candidate, string, bool) {
	var c candidate
	for _, step := range cascade {
		if !step.enabled(po) {
			continue
		}
		next, ok := step.eval(in, c)
		c = next
		if ok {
			return c, step.name, true
		}
	}
	return c, StrategyFallback, false
}

// evalCut requires the top buy listings to all ask the same price, and
// likewise for sell. With a uniform book and room to move, it quotes one
// unit inside each side to narrow the spread.
func evalCut(in *cascadeInput, c candidate) (candidate, bool) {
	if !uniformCurrencies(in.buyListings, in.buyLimit) || !uniformCurrencies(in.sellListings, in.sellLimit) {
		return c, false
	}

	c = candidate{buy: in.buyValues[0], sell: in.sellValues[0]}
	if c.sell-c.buy > minSpread {
		c.buy++
		c.sell--
		return c, true
	}
	return c, false
}

// evalSnip takes the best of each side unconditionally and narrows by one
// unit each when the spread allows.
func evalSnip(in *cascadeInput, c candidate) (candidate, bool) {
	c = candidate{buy: in.buyValues[0], sell: in.sellValues[0]}
	if c.sell-c.buy > minSpread {
		c.buy++
		c.sell--
		return c, true
	}
	return c, false
}

// evalMatch quotes the tightest existing spread without narrowing it.
func evalMatch(in *cascadeInput, c candidate) (candidate, bool) {
	c = candidate{buy: in.buyValues[0], sell: in.sellValues[0]}
	if c.buy != c.sell && c.buy < c.sell {
		return c, true
	}
	return c, false
}

// evalRound averages the top listings on each side independently, snapped
// to the nearest half-scrap.
func evalRound(in *cascadeInput, c candidate) (candidate, bool) {
	c = candidate{
		buy:  roundedAverage(in.buyValues, in.buyLimit),
		sell: roundedAverage(in.sellValues, in.sellLimit),
	}
	if c.buy != c.sell && c.buy < c.sell {
		return c, true
	}
	return c, false
}

// evalBackoff is the unconditional last resort: buy one unit below whatever
// sell the cascade last computed.
func evalBackoff(_ *cascadeInput, c candidate) (candidate, bool) {
	c.buy = c.sell - 1
	return c, true
}

// uniformCurrencies reports whether the first limit listings all carry a
// structurally identical asking price.
func uniformCurrencies(listings []listing.Listing, limit int) bool {
	if limit > len(listings) {
		limit = len(listings)
	}
	first := listings[0].Currencies
	for _, l := range listings[:limit] {
		if l.Currencies != first {
			return false
		}
	}
	return true
}

// roundedAverage averages the first limit values, rounded to the nearest
// half-scrap.
func roundedAverage(values []int64, limit int) int64 {
	if limit > len(values) {
		limit = len(values)
	}
	var sum int64
	for _, v := range values[:limit] {
		sum += v
	}
	return int64(math.Round(float64(sum) / float64(limit)))
}
