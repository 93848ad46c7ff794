package currency

import (
	"errors"
	"fmt"
	"math"
)

// The traded economy counts 9 scrap to the refined and trades down to
// half-scrap granularity. All engine arithmetic is done on integer
// half-scrap to keep it exact; refined metal only appears at the edges.
const (
	ScrapPerRefined     = 9
	HalfScrapPerRefined = 18
)

var ErrMissingConversion = errors.New("missing key conversion rate")

// Currencies is a two-part price: whole keys plus refined metal.
type Currencies struct {
	Keys  int     `json:"keys"`
	Metal float64 `json:"metal"`
}

// Equal reports structural equality: same key count and same metal amount.
// Two representations of the same underlying value with a different
// key/metal split are NOT equal; unchanged-price checks rely on this.
func (c Currencies) Equal(other Currencies) bool {
	return c.Keys == other.Keys && c.Metal == other.Metal
}

// IsZero reports whether both components are zero.
func (c Currencies) IsZero() bool {
	return c.Keys == 0 && c.Metal == 0
}

func (c Currencies) String() string {
	if c.Keys == 0 {
		return fmt.Sprintf("%v ref", c.Metal)
	}
	if c.Metal == 0 {
		return fmt.Sprintf("%d keys", c.Keys)
	}
	return fmt.Sprintf("%d keys, %v ref", c.Keys, c.Metal)
}

// ToHalfScrap converts the pair into integer half-scrap under the given key
// rate (key price in refined metal). Returns ErrMissingConversion when the
// pair carries keys but no rate is available.
func (c Currencies) ToHalfScrap(keyRateMetal float64) (int64, error) {
	value := MetalToHalfScrap(c.Metal)
	if c.Keys != 0 {
		if keyRateMetal == 0 {
			return 0, ErrMissingConversion
		}
		value += int64(c.Keys) * MetalToHalfScrap(keyRateMetal)
	}
	return value, nil
}

// FromHalfScrap converts integer half-scrap back into a key/metal pair under
// the given key rate. A zero rate yields a purely metal-denominated pair.
func FromHalfScrap(halfScrap int64, keyRateMetal float64) Currencies {
	if keyRateMetal == 0 {
		return Currencies{Keys: 0, Metal: HalfScrapToMetal(halfScrap)}
	}

	keyHalfScrap := MetalToHalfScrap(keyRateMetal)
	if keyHalfScrap == 0 {
		return Currencies{Keys: 0, Metal: HalfScrapToMetal(halfScrap)}
	}

	// Truncated division keeps the remainder on the metal side for
	// negative values as well.
	keys := halfScrap / keyHalfScrap
	remainder := halfScrap - keys*keyHalfScrap

	return Currencies{Keys: int(keys), Metal: HalfScrapToMetal(remainder)}
}

// MetalToHalfScrap converts refined metal into integer half-scrap, rounding
// to the nearest representable step.
func MetalToHalfScrap(metal float64) int64 {
	return int64(math.Round(metal * HalfScrapPerRefined))
}

// HalfScrapToMetal converts integer half-scrap into refined metal, snapped to
// the in-game display granularity (two decimal places, as the client truncates
// repeating ninths).
func HalfScrapToMetal(halfScrap int64) float64 {
	refined := float64(halfScrap) / HalfScrapPerRefined
	return math.Trunc(refined*100) / 100
}

// SnapMetal normalizes a refined amount onto the half-scrap grid. Listing
// payloads carry arbitrary floats; everything stored or compared goes
// through here first.
func SnapMetal(metal float64) float64 {
	return HalfScrapToMetal(MetalToHalfScrap(metal))
}
