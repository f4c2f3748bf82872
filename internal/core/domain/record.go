package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO day format used for record dates at every boundary.
const DateLayout = "2006-01-02"

type Shop struct {
	ID         string
	Name       string
	RouteOrder int
	CreatedAt  time.Time
}

type DeliveryRecord struct {
	ID                string
	ShopID            string
	Date              string
	ProductQuantities map[string]int
	TotalAmount       decimal.Decimal
	CreatedAt         time.Time
}

type PaymentRecord struct {
	ID        string
	ShopID    string
	Date      string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

type Note struct {
	ID        string
	ShopID    string
	Date      string
	Content   string
	CreatedAt time.Time
}

// RecordFilter narrows record listings. Empty fields match everything.
type RecordFilter struct {
	ShopID string
	Date   string
}

type LedgerEventType string

const (
	LedgerEventDeliveryRecorded LedgerEventType = "delivery.recorded"
	LedgerEventPaymentRecorded  LedgerEventType = "payment.recorded"
)

// LedgerEvent is emitted after a record has been persisted.
type LedgerEvent struct {
	Type         LedgerEventType
	RecordID     string
	ShopID       string
	Date         string
	Amount       decimal.Decimal
	PendingAfter decimal.Decimal
	OccurredAt   time.Time
}

// ParseDate validates an ISO YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("date", "must be YYYY-MM-DD")
	}
	return t, nil
}
