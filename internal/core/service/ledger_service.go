package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/milk-route/internal/core/cart"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/ledger"
	"github.com/rl1809/milk-route/internal/core/money"
	"github.com/rl1809/milk-route/internal/core/receipt"
	"github.com/rl1809/milk-route/internal/port"
)

var (
	ErrEmptyCart             = domain.NewValidationError("cart", "has no items")
	ErrPaymentExceedsBalance = domain.NewValidationError("amount", "exceeds outstanding balance")
)

type Options struct {
	// QueueSize bounds the ledger event queue. Zero disables events.
	QueueSize    int
	BusinessName string
	Logger       *zap.Logger
	Now          func() time.Time
}

type LedgerService struct {
	store    port.RecordStore
	cache    port.CacheRepository
	ledger   *ledger.Reconciler
	receipts receipt.Formatter
	logger   *zap.Logger
	now      func() time.Time

	eventsMu sync.RWMutex
	events   chan domain.LedgerEvent
	closed   bool

	// per-shop mutexes so the pre-save balance read, the append and the
	// pending-after computation of one save are not interleaved with another
	// save for the same shop in this process. Keys are shop_id -> *sync.Mutex
	shopLocks sync.Map
}

type DeliveryRequest struct {
	RequestID string
	ShopID    string
	Date      string
	Cart      *cart.Cart
}

type DeliveryResult struct {
	Record        domain.DeliveryRecord
	Lines         []domain.CartLine
	Totals        domain.Totals
	ShopName      string
	PendingBefore decimal.Decimal
	PendingAfter  decimal.Decimal
	Receipt       string
}

type PaymentRequest struct {
	RequestID string
	ShopID    string
	Date      string
	Amount    decimal.Decimal
}

type PaymentResult struct {
	Record        domain.PaymentRecord
	ShopName      string
	PendingBefore decimal.Decimal
	PendingAfter  decimal.Decimal
	Receipt       string
}

// NewLedgerService wires the save flow. cache may be nil, in which case
// request IDs are not deduplicated.
func NewLedgerService(store port.RecordStore, cache port.CacheRepository, reconciler *ledger.Reconciler, opts Options) *LedgerService {
	s := &LedgerService{
		store:    store,
		cache:    cache,
		ledger:   reconciler,
		receipts: receipt.NewFormatter(opts.BusinessName),
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.QueueSize > 0 {
		s.events = make(chan domain.LedgerEvent, opts.QueueSize)
	}
	return s
}

// SaveDelivery persists the cart as a delivery record for the shop. On
// success the saved lines are removed from the cart; on any failure it is
// left untouched.
func (s *LedgerService) SaveDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	if req.Cart == nil {
		return nil, domain.ErrCartNotFound
	}
	if err := validateTarget(req.ShopID, req.Date); err != nil {
		return nil, err
	}
	if !req.Cart.BeginSave() {
		return nil, domain.ErrSaveInProgress
	}
	defer req.Cart.EndSave()

	lines, totals := req.Cart.View()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	shop, err := s.shop(ctx, req.ShopID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockForShop(req.ShopID)
	defer unlock()

	release, err := s.claim(ctx, "delivery", req.RequestID)
	if err != nil {
		return nil, err
	}

	before, err := s.ledger.OutstandingBalance(ctx, req.ShopID)
	if err != nil {
		release()
		return nil, fmt.Errorf("pre-save balance: %w", err)
	}

	quantities := make(map[string]int, len(lines))
	for _, l := range lines {
		quantities[l.ProductID] = l.Quantity
	}

	rec, err := s.store.CreateDeliveryRecord(ctx, domain.DeliveryRecord{
		ID:                uuid.NewString(),
		ShopID:            req.ShopID,
		Date:              req.Date,
		ProductQuantities: quantities,
		TotalAmount:       totals.GrandTotal,
		CreatedAt:         s.now(),
	})
	if err != nil {
		release()
		return nil, &domain.StoreError{Op: "create delivery", Err: err}
	}

	after := before.Add(rec.TotalAmount)
	text := s.receipts.Delivery(receipt.DeliveryReceipt{
		Date:         rec.Date,
		ShopName:     shop.Name,
		Lines:        lines,
		Total:        rec.TotalAmount,
		PendingAfter: after,
	})

	req.Cart.ClearSaved(lines)

	s.logger.Info("delivery saved",
		zap.String("record_id", rec.ID),
		zap.String("shop_id", rec.ShopID),
		zap.String("total", money.Format(rec.TotalAmount)),
		zap.String("pending_after", money.Format(after)),
	)
	s.enqueue(domain.LedgerEvent{
		Type:         domain.LedgerEventDeliveryRecorded,
		RecordID:     rec.ID,
		ShopID:       rec.ShopID,
		Date:         rec.Date,
		Amount:       rec.TotalAmount,
		PendingAfter: after,
		OccurredAt:   s.now(),
	})

	return &DeliveryResult{
		Record:        rec,
		Lines:         lines,
		Totals:        totals,
		ShopName:      shop.Name,
		PendingBefore: before,
		PendingAfter:  after,
		Receipt:       text,
	}, nil
}

// SavePayment records a payment. The amount may not exceed what the shop owes
// at the moment of the save.
func (s *LedgerService) SavePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := validateTarget(req.ShopID, req.Date); err != nil {
		return nil, err
	}
	if err := money.Validate("amount", req.Amount); err != nil {
		return nil, err
	}

	shop, err := s.shop(ctx, req.ShopID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockForShop(req.ShopID)
	defer unlock()

	release, err := s.claim(ctx, "payment", req.RequestID)
	if err != nil {
		return nil, err
	}

	before, err := s.ledger.OutstandingBalance(ctx, req.ShopID)
	if err != nil {
		release()
		return nil, fmt.Errorf("pre-save balance: %w", err)
	}
	if req.Amount.GreaterThan(before) {
		release()
		return nil, ErrPaymentExceedsBalance
	}

	rec, err := s.store.CreatePaymentRecord(ctx, domain.PaymentRecord{
		ID:        uuid.NewString(),
		ShopID:    req.ShopID,
		Date:      req.Date,
		Amount:    req.Amount,
		CreatedAt: s.now(),
	})
	if err != nil {
		release()
		return nil, &domain.StoreError{Op: "create payment", Err: err}
	}

	after := before.Sub(rec.Amount)
	text := s.receipts.Payment(receipt.PaymentReceipt{
		Date:         rec.Date,
		ShopName:     shop.Name,
		Amount:       rec.Amount,
		PendingAfter: after,
	})

	s.logger.Info("payment saved",
		zap.String("record_id", rec.ID),
		zap.String("shop_id", rec.ShopID),
		zap.String("amount", money.Format(rec.Amount)),
		zap.String("pending_after", money.Format(after)),
	)
	s.enqueue(domain.LedgerEvent{
		Type:         domain.LedgerEventPaymentRecorded,
		RecordID:     rec.ID,
		ShopID:       rec.ShopID,
		Date:         rec.Date,
		Amount:       rec.Amount,
		PendingAfter: after,
		OccurredAt:   s.now(),
	})

	return &PaymentResult{
		Record:        rec,
		ShopName:      shop.Name,
		PendingBefore: before,
		PendingAfter:  after,
		Receipt:       text,
	}, nil
}

func (s *LedgerService) AddNote(ctx context.Context, shopID, date, content string) (domain.Note, error) {
	if err := validateTarget(shopID, date); err != nil {
		return domain.Note{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Note{}, domain.NewValidationError("content", "is required")
	}
	if _, err := s.shop(ctx, shopID); err != nil {
		return domain.Note{}, err
	}

	note, err := s.store.CreateNote(ctx, domain.Note{
		ID:        uuid.NewString(),
		ShopID:    shopID,
		Date:      date,
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Note{}, &domain.StoreError{Op: "create note", Err: err}
	}
	return note, nil
}

func (s *LedgerService) Notes(ctx context.Context, filter domain.RecordFilter) ([]domain.Note, error) {
	if filter.Date != "" {
		if _, err := domain.ParseDate(filter.Date); err != nil {
			return nil, err
		}
	}
	notes, err := s.store.ListNotes(ctx, filter)
	if err != nil {
		return nil, &domain.StoreError{Op: "list notes", Err: err}
	}
	return notes, nil
}

// Balance returns the shop's outstanding amount, recomputed from its records.
func (s *LedgerService) Balance(ctx context.Context, shopID string) (decimal.Decimal, error) {
	if _, err := s.shop(ctx, shopID); err != nil {
		return decimal.Zero, err
	}
	return s.ledger.OutstandingBalance(ctx, shopID)
}

func (s *LedgerService) Summary(ctx context.Context, date string) (ledger.Summary, error) {
	return s.ledger.PeriodSummary(ctx, date)
}

func (s *LedgerService) ShopStatuses(ctx context.Context, date string, opts ledger.StatusOptions) ([]ledger.ShopStatus, error) {
	return s.ledger.ShopStatuses(ctx, date, opts)
}

func (s *LedgerService) Events() <-chan domain.LedgerEvent {
	return s.events
}

// Close closes the event queue. Saves that finish afterwards drop their
// event. Safe to call more than once.
func (s *LedgerService) Close() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events == nil || s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *LedgerService) enqueue(ev domain.LedgerEvent) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if s.events == nil {
		return
	}
	if s.closed {
		s.logger.Warn("event queue closed, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("record_id", ev.RecordID),
		)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("record_id", ev.RecordID),
		)
	}
}

func (s *LedgerService) shop(ctx context.Context, shopID string) (*domain.Shop, error) {
	shop, err := s.store.GetShop(ctx, shopID)
	if err != nil {
		return nil, &domain.StoreError{Op: "get shop", Err: err}
	}
	if shop == nil {
		return nil, domain.ErrShopNotFound
	}
	return shop, nil
}

// claim marks requestID as seen. The returned func releases the key again so
// a save that failed can be retried with the same ID.
func (s *LedgerService) claim(ctx context.Context, kind, requestID string) (func(), error) {
	if s.cache == nil || requestID == "" {
		return func() {}, nil
	}

	key := fmt.Sprintf("idempotency:%s:%s", kind, requestID)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrDuplicateRequest
	}

	return func() {
		if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Error("release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *LedgerService) lockForShop(shopID string) func() {
	v, _ := s.shopLocks.LoadOrStore(shopID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func validateTarget(shopID, date string) error {
	if strings.TrimSpace(shopID) == "" {
		return domain.NewValidationError("shop_id", "is required")
	}
	_, err := domain.ParseDate(date)
	return err
}
