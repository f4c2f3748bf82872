package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/domain"
)

func TestMemoryAdapter_SeedAndGetShop(t *testing.T) {
	m := NewMemoryAdapter()
	m.SeedShops(3)

	shops, _ := m.ListShops(context.Background())
	if len(shops) != 3 {
		t.Fatalf("expected 3 shops, got %d", len(shops))
	}
	for i, s := range shops {
		if s.RouteOrder != i+1 {
			t.Errorf("expected route order %d, got %d", i+1, s.RouteOrder)
		}
	}

	shop, _ := m.GetShop(context.Background(), "shop-2")
	if shop == nil || shop.Name != "Shop 2" {
		t.Errorf("unexpected shop: %+v", shop)
	}
	missing, _ := m.GetShop(context.Background(), "shop-9")
	if missing != nil {
		t.Error("expected nil for missing shop")
	}
}

func TestMemoryAdapter_RecordsAreCopied(t *testing.T) {
	m := NewMemoryAdapter()
	quantities := map[string]int{"prod-1": 3}

	m.CreateDeliveryRecord(context.Background(), domain.DeliveryRecord{
		ID: "d-1", ShopID: "shop-1", Date: "2026-10-18",
		ProductQuantities: quantities, TotalAmount: decimal.RequireFromString("78"),
	})
	quantities["prod-1"] = 99

	got, _ := m.ListDeliveries(context.Background(), domain.RecordFilter{ShopID: "shop-1"})
	if got[0].ProductQuantities["prod-1"] != 3 {
		t.Errorf("stored record mutated through caller map: %+v", got[0].ProductQuantities)
	}
}

func TestMemoryAdapter_Filter(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	m.CreatePaymentRecord(ctx, domain.PaymentRecord{ID: "1", ShopID: "a", Date: "2026-10-17"})
	m.CreatePaymentRecord(ctx, domain.PaymentRecord{ID: "2", ShopID: "a", Date: "2026-10-18"})
	m.CreatePaymentRecord(ctx, domain.PaymentRecord{ID: "3", ShopID: "b", Date: "2026-10-18"})

	tests := []struct {
		filter domain.RecordFilter
		want   int
	}{
		{domain.RecordFilter{}, 3},
		{domain.RecordFilter{ShopID: "a"}, 2},
		{domain.RecordFilter{Date: "2026-10-18"}, 2},
		{domain.RecordFilter{ShopID: "b", Date: "2026-10-17"}, 0},
	}
	for _, tt := range tests {
		got, _ := m.ListPayments(ctx, tt.filter)
		if len(got) != tt.want {
			t.Errorf("filter %+v: expected %d, got %d", tt.filter, tt.want, len(got))
		}
	}
}

func TestMemoryAdapter_Idempotency(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	if ok, _ := m.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := m.SetIdempotency(ctx, "k"); ok {
		t.Error("expected second claim to fail")
	}
	m.ReleaseIdempotency(ctx, "k")
	if ok, _ := m.SetIdempotency(ctx, "k"); !ok {
		t.Error("expected claim after release to succeed")
	}
}
