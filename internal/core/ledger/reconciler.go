package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/money"
	"github.com/rl1809/milk-route/internal/port"
)

const defaultConcurrency = 8

type Summary struct {
	Date               string
	Delivered          decimal.Decimal
	Collected          decimal.Decimal
	PendingTotal       decimal.Decimal
	CompletedShopCount int
	ShopCount          int
}

type ShopStatus struct {
	Shop            domain.Shop
	DeliveredOnDate decimal.Decimal
	Pending         decimal.Decimal
}

type SortOrder string

const (
	SortByRoute   SortOrder = "route"
	SortByPending SortOrder = "pending"
)

type StatusOptions struct {
	Sort        SortOrder
	PendingOnly bool
}

// Reconciler derives balances from the record store on every call. It keeps
// no balance state of its own.
type Reconciler struct {
	store       port.LedgerReader
	concurrency int
}

func NewReconciler(store port.LedgerReader, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Reconciler{store: store, concurrency: concurrency}
}

// Balance is Σ delivery totals − Σ payment amounts. Order does not matter.
func Balance(deliveries []domain.DeliveryRecord, payments []domain.PaymentRecord) decimal.Decimal {
	return TotalDelivered(deliveries).Sub(TotalCollected(payments))
}

func TotalDelivered(deliveries []domain.DeliveryRecord) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(deliveries))
	for i, d := range deliveries {
		amounts[i] = d.TotalAmount
	}
	return money.Sum(amounts...)
}

func TotalCollected(payments []domain.PaymentRecord) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(payments))
	for i, p := range payments {
		amounts[i] = p.Amount
	}
	return money.Sum(amounts...)
}

func (r *Reconciler) OutstandingBalance(ctx context.Context, shopID string) (decimal.Decimal, error) {
	filter := domain.RecordFilter{ShopID: shopID}

	deliveries, err := r.store.ListDeliveries(ctx, filter)
	if err != nil {
		return decimal.Zero, &domain.StoreError{Op: "list deliveries", Err: err}
	}
	payments, err := r.store.ListPayments(ctx, filter)
	if err != nil {
		return decimal.Zero, &domain.StoreError{Op: "list payments", Err: err}
	}

	return Balance(deliveries, payments), nil
}

// PeriodSummary aggregates one date across all shops. Shop balances are
// computed concurrently; the first failure is returned.
func (r *Reconciler) PeriodSummary(ctx context.Context, date string) (Summary, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return Summary{}, err
	}

	filter := domain.RecordFilter{Date: date}
	deliveries, err := r.store.ListDeliveries(ctx, filter)
	if err != nil {
		return Summary{}, &domain.StoreError{Op: "list deliveries", Err: err}
	}
	payments, err := r.store.ListPayments(ctx, filter)
	if err != nil {
		return Summary{}, &domain.StoreError{Op: "list payments", Err: err}
	}

	shops, err := r.store.ListShops(ctx)
	if err != nil {
		return Summary{}, &domain.StoreError{Op: "list shops", Err: err}
	}
	balances, err := r.balances(ctx, shops)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Date:         date,
		Delivered:    TotalDelivered(deliveries),
		Collected:    TotalCollected(payments),
		PendingTotal: money.Sum(balances...),
		ShopCount:    len(shops),
	}
	for _, b := range balances {
		if b.IsZero() {
			summary.CompletedShopCount++
		}
	}
	return summary, nil
}

// ShopStatuses lists every shop with what it received on date and what it
// currently owes.
func (r *Reconciler) ShopStatuses(ctx context.Context, date string, opts StatusOptions) ([]ShopStatus, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}

	shops, err := r.store.ListShops(ctx)
	if err != nil {
		return nil, &domain.StoreError{Op: "list shops", Err: err}
	}
	deliveries, err := r.store.ListDeliveries(ctx, domain.RecordFilter{Date: date})
	if err != nil {
		return nil, &domain.StoreError{Op: "list deliveries", Err: err}
	}
	balances, err := r.balances(ctx, shops)
	if err != nil {
		return nil, err
	}

	delivered := make(map[string]decimal.Decimal)
	for _, d := range deliveries {
		delivered[d.ShopID] = delivered[d.ShopID].Add(d.TotalAmount)
	}

	out := make([]ShopStatus, 0, len(shops))
	for i, s := range shops {
		if opts.PendingOnly && !balances[i].IsPositive() {
			continue
		}
		out = append(out, ShopStatus{
			Shop:            s,
			DeliveredOnDate: money.Round(delivered[s.ID]),
			Pending:         balances[i],
		})
	}

	if opts.Sort == SortByPending {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Pending.GreaterThan(out[j].Pending) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Shop.RouteOrder < out[j].Shop.RouteOrder })
	}
	return out, nil
}

func (r *Reconciler) balances(parent context.Context, shops []domain.Shop) ([]decimal.Decimal, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	balances := make([]decimal.Decimal, len(shops))
	sem := make(chan struct{}, r.concurrency)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i, shop := range shops {
		wg.Add(1)
		go func(i int, shopID string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			b, err := r.OutstandingBalance(ctx, shopID)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("balance for shop %s: %w", shopID, err)
					cancel()
				})
				return
			}
			balances[i] = b
		}(i, shop.ID)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}
