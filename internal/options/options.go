package options

import (
	"strings"
)

// MaxPercentageDifferences bounds how far a computed price may deviate from
// the fallback quote. Buy is an overpay ceiling (positive percent); sell is
// an underpay floor (negative percent).
type MaxPercentageDifferences struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// Intervals are the periodic task intervals, in seconds.
type Intervals struct {
	Snapshot  int `json:"snapshot"`
	Price     int `json:"price"`
	Pricelist int `json:"pricelist"`
	Key       int `json:"key"`
}

// PricingOptions control the engine's filter and strategy stages.
type PricingOptions struct {
	OnlyBots      bool `json:"onlyBots"`
	AllowCutting  bool `json:"allowCutting"`
	AllowSnipping bool `json:"allowSnipping"`
	AllowMatching bool `json:"allowMatching"`
	AllowRounding bool `json:"allowRounding"`
	AllowBacking  bool `json:"allowBacking"`

	BuyLimit        int  `json:"buyLimit"`
	SellLimit       int  `json:"sellLimit"`
	BuyLimitStrict  bool `json:"buyLimitStrict"`
	SellLimitStrict bool `json:"sellLimitStrict"`

	BuyHumanFallback  bool `json:"buyHumanFallback"`
	SellHumanFallback bool `json:"sellHumanFallback"`
}

// BlockedAttribute names an item attribute defindex whose presence
// disqualifies a listing (paints, spells, strange parts).
type BlockedAttribute struct {
	Name     string `json:"name"`
	Defindex int    `json:"defindex"`
}

// Options is the immutable-per-pass pricing configuration document. It is
// persisted as options.json in the object store and mutated only through
// the Manager; periodic tasks read a snapshot at the start of each pass.
type Options struct {
	MaxPercentageDifferences    MaxPercentageDifferences `json:"maxPercentageDifferences"`
	Intervals                   Intervals                `json:"intervals"`
	PricingOptions              PricingOptions           `json:"pricingOptions"`
	EnforceKeyFallback          bool                     `json:"enforceKeyFallback"`
	ExcludedSteamIDs            []string                 `json:"excludedSteamIDs"`
	TrustedSteamIDs             []string                 `json:"trustedSteamIDs"`
	ExcludedListingDescriptions []string                 `json:"excludedListingDescriptions"`
	BlockedAttributes           []BlockedAttribute       `json:"blockedAttributes"`
	Paints                      []string                 `json:"paints"`
}

// Defaults returns the baseline options document used when options.json
// does not exist yet.
func Defaults() Options {
	return Options{
		MaxPercentageDifferences: MaxPercentageDifferences{Buy: 5, Sell: -8},
		Intervals:                Intervals{Snapshot: 60, Price: 60, Pricelist: 60, Key: 60},
		PricingOptions: PricingOptions{
			OnlyBots:        true,
			AllowCutting:    false,
			AllowSnipping:   false,
			AllowMatching:   false,
			AllowRounding:   true,
			AllowBacking:    false,
			BuyLimit:        5,
			SellLimit:       5,
			BuyLimitStrict:  true,
			SellLimitStrict: true,
		},
		EnforceKeyFallback: true,
		// Known bad actors whose listings poison the book.
		ExcludedSteamIDs: []string{
			"76561199384015307",
			"76561199495073910",
			"76561199222202498",
			"76561199501640256",
			"76561199501799493",
			"76561199465040669",
			"76561199468045911",
			"76561198871163068",
			"76561198274855163",
			"76561199523234411",
			"76561199500884711",
			"76561199518117301",
			"76561199181551276",
			"76561198266870398",
			"76561199402715445",
			"76561198094818081",
			"76561198068640262",
			"76561198380634252",
			"76561199543568974",
			"76561199542850733",
			"76561199545913929",
			"76561199545638184",
			"76561199545797558",
			"76561199545847539",
			"76561198170365551",
			"76561199530079519",
			"76561199530617017",
			"76561199522203126",
		},
		TrustedSteamIDs: []string{
			"76561199110778355",
			"76561199057187154",
			"76561198225717852",
			"76561199118546232",
			"76561198316831771",
			"76561198428177474",
			"76561199072654974",
			"76561198453530349",
			"76561198259733876",
		},
		ExcludedListingDescriptions: []string{
			"exorcism",
			"spell",
			"spells",
			"spelled",
			"footsteps",
			"hh",
			"horseshoes/rotten orange",
			"headless horse",
			"pumpkin bombs",
		},
		BlockedAttributes: []BlockedAttribute{
			{Name: "Painted Items", Defindex: 142},
			{Name: "SPELL: set item tint RGB", Defindex: 1004},
			{Name: "SPELL: set Halloween footstep type", Defindex: 1005},
			{Name: "SPELL: Halloween voice modulation", Defindex: 1006},
			{Name: "SPELL: Halloween pumpkin explosions", Defindex: 1007},
			{Name: "SPELL: Halloween green flames", Defindex: 1008},
			{Name: "SPELL: Halloween death ghosts", Defindex: 1009},
			{Name: "Strange Part", Defindex: 379},
			{Name: "Strange Part", Defindex: 380},
			{Name: "Strange Part", Defindex: 381},
			{Name: "Strange Part", Defindex: 382},
			{Name: "Strange Part", Defindex: 383},
			{Name: "Strange Part", Defindex: 384},
		},
		Paints: []string{
			"A Color Similar to Slate",
			"Indubitably Green",
			"A Deep Commitment to Purple",
			"Mann Co. Orange",
			"A Distinctive Lack of Hue",
			"Muskelmannbraun",
			"A Mann's Mint",
			"Noble Hatter's Violet",
			"After Eight",
			"Peculiarly Drab Tincture",
			"Aged Moustache Grey",
			"Pink as Hell",
			"An Extraordinary Abundance of Tinge",
			"Radigan Conagher Brown",
			"Australium Gold",
			"The Bitter Taste of Defeat and Lime",
			"Color No. 216-190-216",
			"The Color of a Gentlemann's Business Pants",
			"Dark Salmon Injustice",
			"Ye Olde Rustic Colour",
			"Drably Olive",
			"Zepheniah's Greed",
			"An Air of Debonair",
			"Team Spirit",
			"Balaclavas Are Forever",
			"The Value of Teamwork",
			"Cream Spirit",
			"Waterlogged Lab Coat",
			"Operator's Overalls",
		},
	}
}

// HasExcludedSteamID reports whether the steam id is on the exclusion list.
func (o *Options) HasExcludedSteamID(steamID string) bool {
	for _, id := range o.ExcludedSteamIDs {
		if id == steamID {
			return true
		}
	}
	return false
}

// IsPaint reports whether the item is an exempted paint variant, which
// bypasses the blocked-attribute filter. Non-Craftable variants count too.
func (o *Options) IsPaint(name string) bool {
	name = strings.TrimPrefix(name, "Non-Craftable ")
	for _, paint := range o.Paints {
		if paint == name {
			return true
		}
	}
	return false
}
