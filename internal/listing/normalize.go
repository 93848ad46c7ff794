package listing

import (
	"bytes"
	"encoding/json"
)

// flexBool tolerates the snapshot API's habit of encoding booleans as 0/1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*b = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*b = n != 0
	}
	return nil
}

// wirePayload covers both upstream shapes of a listing. The live stream
// uses listedAt/bumpedAt/tradeOffersPreferred; snapshots use
// timestamp/bump/offers. Normalize branches on which set is populated.
type wirePayload struct {
	SteamID    string     `json:"steamid"`
	Currencies Currencies `json:"currencies"`
	Intent     string     `json:"intent"`
	UserAgent  *UserAgent `json:"userAgent"`
	Item       Item       `json:"item"`
	Details    string     `json:"details"`

	BuyoutOnly flexBool  `json:"buyoutOnly"`
	Buyout     *flexBool `json:"buyout"`

	// Live stream shape.
	ListedAt             int64    `json:"listedAt"`
	BumpedAt             int64    `json:"bumpedAt"`
	TradeOffersPreferred flexBool `json:"tradeOffersPreferred"`

	// Snapshot shape.
	Timestamp int64    `json:"timestamp"`
	Bump      int64    `json:"bump"`
	Offers    flexBool `json:"offers"`
}

// Normalize converts a raw payload of either wire shape into a Listing.
// Returns false when the payload is unusable (no steamid or no item name).
func Normalize(payload json.RawMessage) (Listing, bool) {
	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Listing{}, false
	}
	return normalize(wire)
}

func normalize(wire wirePayload) (Listing, bool) {
	if wire.SteamID == "" || wire.Item.Name == "" {
		return Listing{}, false
	}

	l := Listing{
		SteamID:    wire.SteamID,
		Intent:     wire.Intent,
		Currencies: wire.Currencies,
		BuyOutOnly: bool(wire.BuyoutOnly),
		UserAgent:  wire.UserAgent,
		Item:       wire.Item,
		Details:    wire.Details,
		OnlyBuyout: true,
	}
	if wire.Buyout != nil {
		l.OnlyBuyout = bool(*wire.Buyout)
	}

	if wire.BumpedAt != 0 {
		// Live stream shape.
		l.ListedAt = wire.ListedAt
		l.BumpedAt = wire.BumpedAt
		l.TradeOffersPreferred = bool(wire.TradeOffersPreferred)
	} else {
		// Snapshot shape.
		l.ListedAt = wire.Timestamp
		l.BumpedAt = wire.Bump
		l.TradeOffersPreferred = bool(wire.Offers)
	}

	return l, true
}
