package listing

import (
	"math"

	"github.com/nekomatic-tf/nekopricer/internal/currency"
)

// Intents. Anything else on the wire is ignored.
const (
	IntentBuy  = "buy"
	IntentSell = "sell"
)

// Attribute is a single item attribute. Only the defindex matters for
// filtering; the rest of the attribute object is dropped at the edge.
type Attribute struct {
	Defindex int `json:"defindex"`
}

// Item is the traded item a listing is for.
type Item struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Currencies is the asking price on the wire. Keys can be fractional in
// listings. USD is carried so the engine can drop listings settled in a
// foreign currency.
type Currencies struct {
	Keys  float64 `json:"keys,omitempty"`
	Metal float64 `json:"metal,omitempty"`
	USD   float64 `json:"usd,omitempty"`
}

// Foreign reports whether the listing is denominated in something other
// than keys and metal.
func (c Currencies) Foreign() bool {
	return c.USD != 0
}

// UserAgent is present on listings managed by a bot.
type UserAgent struct {
	Client    string `json:"client,omitempty"`
	LastPulse int64  `json:"lastPulse,omitempty"`
}

// Listing is a single user's open buy or sell offer, normalized from either
// wire shape. Identity is (item name, steamid, intent); at most one listing
// per identity is retained.
type Listing struct {
	SteamID              string     `json:"steamid"`
	Intent               string     `json:"intent"`
	Currencies           Currencies `json:"currencies"`
	TradeOffersPreferred bool       `json:"trade_offers_preferred"`
	BuyOutOnly           bool       `json:"buy_out_only"`
	ListedAt             int64      `json:"listed_at"`
	BumpedAt             int64      `json:"bumped_at"`
	UserAgent            *UserAgent `json:"user_agent,omitempty"`
	Item                 Item       `json:"item"`
	Details              string     `json:"details"`
	OnlyBuyout           bool       `json:"only_buyout"`
}

// Identity addresses a listing inside the store.
type Identity struct {
	Item    string
	Intent  string
	SteamID string
}

// Identity returns the listing's store identity for a given item name.
func (l *Listing) Identity(item string) Identity {
	return Identity{Item: item, Intent: l.Intent, SteamID: l.SteamID}
}

// FromBot reports whether the listing is managed by a bot user agent.
func (l *Listing) FromBot() bool {
	return l.UserAgent != nil
}

// HasAttribute reports whether the listing's item carries the given
// attribute defindex.
func (l *Listing) HasAttribute(defindex int) bool {
	for _, attr := range l.Item.Attributes {
		if attr.Defindex == defindex {
			return true
		}
	}
	return false
}

// ValueHalfScrap is the listing price in integer half-scrap under the given
// key rate. Fractional key counts are rounded after conversion.
func (l *Listing) ValueHalfScrap(keyRateMetal float64) int64 {
	value := currency.MetalToHalfScrap(l.Currencies.Metal)
	if l.Currencies.Keys != 0 {
		keyHalfScrap := currency.MetalToHalfScrap(keyRateMetal)
		value += int64(math.Round(l.Currencies.Keys * float64(keyHalfScrap)))
	}
	return value
}
