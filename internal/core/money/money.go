// Package money holds the currency arithmetic shared by carts, the ledger and
// receipts. Amounts are decimal.Decimal; rounding is half-up to 2 places and is
// applied once per line before any aggregation.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/domain"
)

// Places is the number of decimal places every stored or displayed amount has.
const Places = 2

var Zero = decimal.Zero

// Round rounds half-up to Places. Amounts in this domain are never negative,
// so decimal's half-away-from-zero rounding is half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Aggregate sums the rounded line totals. GrandTotal equals Subtotal while no
// tax or discount rule exists.
func Aggregate(lines []domain.CartLine) domain.Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l.Quantity, l.UnitPrice))
	}
	subtotal = Round(subtotal)
	return domain.Totals{Subtotal: subtotal, GrandTotal: subtotal}
}

func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Round(total)
}

// Format renders an amount with exactly two decimals, e.g. "78.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Parse reads a user-supplied amount. More than two decimal places or a
// non-positive value is rejected.
func Parse(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, "not a number")
	}
	if err := Validate(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func Validate(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return domain.NewValidationError(field, "must be greater than zero")
	}
	if !d.Equal(Round(d)) {
		return domain.NewValidationError(field, "at most two decimal places")
	}
	return nil
}
