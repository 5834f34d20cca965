package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ShouldFlag reports whether a trade's USD rate exceeds the desk's reference
// selling price. Equal rates are in range; an unparseable rate never flags.
func ShouldFlag(dollarRate string, referenceSellingPrice decimal.Decimal) bool {
	rate, err := decimal.NewFromString(strings.TrimSpace(dollarRate))
	if err != nil {
		return false
	}
	return rate.GreaterThan(referenceSellingPrice)
}
