package domain

import (
	"github.com/nekomatic-tf/nekopricer/internal/currency"
)

// The key is the unit of account for everything else, so it gets special
// treatment throughout: it is never priced during a bulk pass and its own
// price is always purely metal-denominated.
const (
	KeySKU  = "5021;6"
	KeyName = "Mann Co. Supply Crate Key"
)

// Price record sources.
const (
	SourceOwn      = "nekopricer"
	SourcePricesTF = "prices.tf"
)

// Item pairs a human display name with its stable SKU.
type Item struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

// Strategy records which pricing strategy produced a record and whether it
// validated. Type is one of cut, snipping, matching, round, backoff, or
// fallback when no strategy validated.
type Strategy struct {
	Type  string `json:"type"`
	Valid bool   `json:"valid"`
}

// PriceRecord is one tracked item's two-sided quote. A record is superseded
// wholesale on each pricing pass; Fallback carries the failure reason when
// the quote came from the external source instead of the engine.
type PriceRecord struct {
	Name     string              `json:"name"`
	SKU      string              `json:"sku"`
	Source   string              `json:"source"`
	Time     int64               `json:"time"`
	Buy      currency.Currencies `json:"buy"`
	Sell     currency.Currencies `json:"sell"`
	Strategy *Strategy           `json:"strategy,omitempty"`
	Fallback string              `json:"fallback,omitempty"`
}

// Unchanged reports whether both sides of the quote are structurally equal
// to the other record's. Used to skip rewrites and emits for prices that
// did not move.
func (p *PriceRecord) Unchanged(other *PriceRecord) bool {
	if other == nil {
		return false
	}
	return p.Buy.Equal(other.Buy) && p.Sell.Equal(other.Sell)
}
