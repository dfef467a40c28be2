// Package fx converts base-unit amounts into the user's display currency.
// The rate table is a static stand-in; wiring a live rate feed is out of
// scope, so correctness here means "deterministic", not "accurate".
package fx

import (
	"github.com/shopspring/decimal"

	"fambudget/internal/core"
)

// BaseCurrency is the unit all operations are stored in.
const BaseCurrency = "PLN"

type Converter struct {
	rates map[string]decimal.Decimal
}

// NewConverter builds a converter from a currency→rate table. Rates are
// multipliers from the base currency.
func NewConverter(rates map[string]decimal.Decimal) *Converter {
	cp := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Converter{rates: cp}
}

// Default returns the stand-in rate table used when no feed is configured.
func Default() *Converter {
	return NewConverter(map[string]decimal.Decimal{
		BaseCurrency: decimal.NewFromInt(1),
		"USD":        decimal.NewFromFloat(0.25),
		"UAH":        decimal.NewFromFloat(10.5),
	})
}

// Rate returns the multiplier for a display currency, 1 when unknown.
func (c *Converter) Rate(currency string) decimal.Decimal {
	if r, ok := c.rates[currency]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

// Convert multiplies a base-unit amount by the display-currency rate,
// rounding to the nearest cent.
func (c *Converter) Convert(m core.Money, currency string) core.Money {
	out := decimal.NewFromInt(m.Cents).Mul(c.Rate(currency)).Round(0)
	return core.Money{Cents: out.IntPart()}
}
