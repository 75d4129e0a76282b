package limits

import (
	"github.com/shopspring/decimal"
)

// CityTiers is the data-driven city classification used to scale limits
// for high-cost locations. A rule limit that names cities gets its
// effective amount multiplied by the tier multiplier when the item's
// location is a configured city.
type CityTiers struct {
	// Tier per city name. Cities not present have no multiplier.
	Cities map[string]int `json:"cities"`
	// Multiplier per tier, e.g. 1 -> 1.6.
	Multipliers map[int]decimal.Decimal `json:"multipliers"`
}

// DefaultCityTiers returns the default tier table: tier-1 cities at 1.6x.
func DefaultCityTiers() CityTiers {
	return CityTiers{
		Cities: map[string]int{
			"北京": 1,
			"上海": 1,
			"广州": 1,
			"深圳": 1,
		},
		Multipliers: map[int]decimal.Decimal{
			1: decimal.RequireFromString("1.6"),
		},
	}
}

// MultiplierFor returns the multiplier for a location, or 1 when the
// location is not a configured city or its tier has no multiplier.
func (ct CityTiers) MultiplierFor(location string) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if location == "" {
		return one
	}
	tier, ok := ct.Cities[location]
	if !ok {
		return one
	}
	mult, ok := ct.Multipliers[tier]
	if !ok || mult.Sign() <= 0 {
		return one
	}
	return mult
}
