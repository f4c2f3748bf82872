package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/milk-route/internal/core/domain"
)

// MemoryAdapter is an in-process RecordStore and CacheRepository used for
// local runs and tests. Records are append-only.
type MemoryAdapter struct {
	mu         sync.RWMutex
	shops      map[string]domain.Shop
	deliveries []domain.DeliveryRecord
	payments   []domain.PaymentRecord
	notes      []domain.Note
	keys       map[string]time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		shops: make(map[string]domain.Shop),
		keys:  make(map[string]time.Time),
	}
}

func (m *MemoryAdapter) AddShop(shop domain.Shop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now()
	}
	m.shops[shop.ID] = shop
}

// SeedShops adds n shops named "Shop 1".."Shop n" in route order.
func (m *MemoryAdapter) SeedShops(n int) {
	for i := 1; i <= n; i++ {
		m.AddShop(domain.Shop{
			ID:         fmt.Sprintf("shop-%d", i),
			Name:       fmt.Sprintf("Shop %d", i),
			RouteOrder: i,
		})
	}
}

func (m *MemoryAdapter) ListShops(ctx context.Context) ([]domain.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Shop, 0, len(m.shops))
	for _, s := range m.shops {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteOrder < out[j].RouteOrder })
	return out, nil
}

func (m *MemoryAdapter) GetShop(ctx context.Context, id string) (*domain.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shops[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryAdapter) CreateDeliveryRecord(ctx context.Context, rec domain.DeliveryRecord) (domain.DeliveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeliveryRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	quantities := make(map[string]int, len(rec.ProductQuantities))
	for k, v := range rec.ProductQuantities {
		quantities[k] = v
	}
	rec.ProductQuantities = quantities
	m.deliveries = append(m.deliveries, rec)
	return rec, nil
}

func (m *MemoryAdapter) CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payments = append(m.payments, rec)
	return rec, nil
}

func (m *MemoryAdapter) ListDeliveries(ctx context.Context, f domain.RecordFilter) ([]domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.DeliveryRecord
	for _, d := range m.deliveries {
		if matches(f, d.ShopID, d.Date) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) ListPayments(ctx context.Context, f domain.RecordFilter) ([]domain.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PaymentRecord
	for _, p := range m.payments {
		if matches(f, p.ShopID, p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) CreateNote(ctx context.Context, note domain.Note) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notes = append(m.notes, note)
	return note, nil
}

func (m *MemoryAdapter) ListNotes(ctx context.Context, f domain.RecordFilter) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Note
	for _, n := range m.notes {
		if matches(f, n.ShopID, n.Date) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.keys[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.keys[key] = time.Now().Add(idempotencyKeyTTL)
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func matches(f domain.RecordFilter, shopID, date string) bool {
	return (f.ShopID == "" || f.ShopID == shopID) && (f.Date == "" || f.Date == date)
}
