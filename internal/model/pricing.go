package model

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxMealCount caps the pasta party headcount.
const MaxMealCount = 20

var (
	// ErrUnknownRaceType is returned when pricing a registration without a
	// valid category.
	ErrUnknownRaceType = errors.New("unknown race type")
	// ErrMealCountOutOfRange is returned when the add-on is enabled with a
	// headcount outside [1, MaxMealCount].
	ErrMealCountOutOfRange = errors.New("meal count out of range")
)

// PriceList holds every amount in minor units (cents).  It is the single
// authoritative source for charges; clients only display it.
type PriceList struct {
	Currency string             `json:"currency"`
	Base     map[RaceType]int64 `json:"base"`
	MealUnit int64              `json:"pasta_party_unit"`
	MaxMeals int                `json:"pasta_party_max"`
}

// DefaultPriceList returns the festival prices: 25 EUR cycling, 10 EUR
// running, 12 EUR per pasta party seat.
func DefaultPriceList() PriceList {
	return NewPriceList("eur", 2500, 1000, 1200)
}

// NewPriceList builds a PriceList from the individual amounts.
func NewPriceList(currency string, cycling, running, mealUnit int64) PriceList {
	return PriceList{
		Currency: currency,
		Base: map[RaceType]int64{
			RaceCycling: cycling,
			RaceRunning: running,
		},
		MealUnit: mealUnit,
		MaxMeals: MaxMealCount,
	}
}

// Total computes base(race) + (addOn ? headcount*unit : 0).  headcount
// must be within [1, MaxMealCount] when the add-on is enabled; it is
// ignored otherwise.
func (p PriceList) Total(race RaceType, addOn bool, headcount int) (int64, error) {
	base, ok := p.Base[race]
	if !ok || !race.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRaceType, race)
	}
	if !addOn {
		return base, nil
	}
	if headcount < 1 || headcount > MaxMealCount {
		return 0, fmt.Errorf("%w: %d", ErrMealCountOutOfRange, headcount)
	}
	return base + p.MealUnit*int64(headcount), nil
}

// TotalFor prices a registration.
func (p PriceList) TotalFor(r Registration) (int64, error) {
	return p.Total(r.RaceType, r.MealAddOn, r.MealCount)
}

// italian formats numbers with the Italian decimal and grouping separators.
var italian = message.NewPrinter(language.Italian)

// FormatAmount renders cents as an Italian currency string, e.g. "€ 61,00".
func FormatAmount(cents int64) string {
	return italian.Sprintf("€ %.2f", float64(cents)/100)
}

// Describe builds the human readable selection summary used as the
// payment description and the checkout line item.
func Describe(r Registration) string {
	s := "Iscrizione " + r.RaceType.Label()
	if r.MealAddOn && r.MealCount > 0 {
		s += italian.Sprintf(" + Pasta party x%d", r.MealCount)
	}
	return s
}
