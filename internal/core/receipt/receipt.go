// Package receipt renders saved deliveries and payments as plain text for
// sharing. Output depends only on the arguments.
package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/money"
)

const (
	DefaultBusinessName = "BrainGrid"
	CurrencySymbol      = "₹"
)

type DeliveryReceipt struct {
	Date         string
	ShopName     string
	Lines        []domain.CartLine
	Total        decimal.Decimal
	PendingAfter decimal.Decimal
}

type PaymentReceipt struct {
	Date         string
	ShopName     string
	Amount       decimal.Decimal
	PendingAfter decimal.Decimal
}

type Formatter struct {
	BusinessName string
}

func NewFormatter(businessName string) Formatter {
	if businessName == "" {
		businessName = DefaultBusinessName
	}
	return Formatter{BusinessName: businessName}
}

func (f Formatter) Delivery(r DeliveryReceipt) string {
	var lines []string
	lines = append(lines, "Delivery Receipt")
	lines = append(lines, "Date: "+r.Date)
	lines = append(lines, "Shop: "+r.ShopName)
	lines = append(lines, "")
	lines = append(lines, "Items:")
	for _, l := range r.Lines {
		lines = append(lines, fmt.Sprintf("- %s × %d @ %s = %s",
			l.Name, l.Quantity, amount(l.UnitPrice), amount(money.LineTotal(l.Quantity, l.UnitPrice))))
	}
	lines = append(lines, "")
	lines = append(lines, "Total: "+amount(r.Total))
	lines = append(lines, "Pending after this: "+amount(r.PendingAfter))
	return f.signOff(lines)
}

func (f Formatter) Payment(r PaymentReceipt) string {
	lines := []string{
		"Payment Receipt",
		"Date: " + r.Date,
		"Shop: " + r.ShopName,
		"",
		"Amount received: " + amount(r.Amount),
		"Outstanding after this: " + amount(r.PendingAfter),
	}
	return f.signOff(lines)
}

func (f Formatter) signOff(lines []string) string {
	lines = append(lines, "", "Thank you,", f.BusinessName)
	return strings.Join(lines, "\n")
}

func amount(d decimal.Decimal) string {
	return CurrencySymbol + money.Format(d)
}
