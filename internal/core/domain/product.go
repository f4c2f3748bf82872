package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// CartLine is one product's quantity within an in-progress delivery entry.
// Name and UnitPrice are captured from the catalog when the line is created.
type CartLine struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal   decimal.Decimal
	GrandTotal decimal.Decimal
}
