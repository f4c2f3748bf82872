package port

import (
	"context"

	"github.com/rl1809/milk-route/internal/core/domain"
)

// LedgerReader is the read side of the record store used for balances.
type LedgerReader interface {
	// ListDeliveries returns delivery records matching the filter, in no particular order
	ListDeliveries(ctx context.Context, filter domain.RecordFilter) ([]domain.DeliveryRecord, error)

	// ListPayments returns payment records matching the filter, in no particular order
	ListPayments(ctx context.Context, filter domain.RecordFilter) ([]domain.PaymentRecord, error)

	// ListShops returns all shops ordered by route order
	ListShops(ctx context.Context) ([]domain.Shop, error)
}

type RecordStore interface {
	LedgerReader

	// CreateDeliveryRecord appends a delivery record and returns it as stored
	CreateDeliveryRecord(ctx context.Context, rec domain.DeliveryRecord) (domain.DeliveryRecord, error)

	// CreatePaymentRecord appends a payment record and returns it as stored
	CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, error)

	// GetShop returns nil when the shop does not exist
	GetShop(ctx context.Context, id string) (*domain.Shop, error)

	CreateNote(ctx context.Context, note domain.Note) (domain.Note, error)
	ListNotes(ctx context.Context, filter domain.RecordFilter) ([]domain.Note, error)
}
