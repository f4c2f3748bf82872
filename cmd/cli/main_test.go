package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rl1809/milk-route/internal/adapter/handler"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		in      string
		id      string
		qty     int
		wantErr bool
	}{
		{"prod-1=3", "prod-1", 3, false},
		{"prod-2=0", "prod-2", 0, false},
		{"prod-1", "", 0, true},
		{"prod-1=-2", "", 0, true},
		{"prod-1=two", "", 0, true},
	}
	for _, tt := range tests {
		id, qty, err := parseItem(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: unexpected error %v", tt.in, err)
			continue
		}
		if id != tt.id || qty != tt.qty {
			t.Errorf("%s: got %s=%d", tt.in, id, qty)
		}
	}
}

func testModel() cartModel {
	return cartModel{
		shopID: "shop-1",
		date:   "2026-10-18",
		products: []handler.ProductJSON{
			{ID: "prod-1", Name: "Smart", UnitPrice: "26.00"},
			{ID: "prod-2", Name: "Tone milk 180ml", UnitPrice: "10.50"},
		},
		cart:   handler.CartJSON{ID: "c-1", GrandTotal: "0.00"},
		status: "Ready",
	}
}

func TestCartModel_Cursor(t *testing.T) {
	m := testModel()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(cartModel)
	if m.cursor != 1 {
		t.Errorf("expected cursor 1, got %d", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if next.(cartModel).cursor != 1 {
		t.Error("cursor must stop at the last product")
	}
}

func TestCartModel_CartUpdated(t *testing.T) {
	m := testModel()
	m.busy = true

	next, _ := m.Update(cartUpdated{cart: handler.CartJSON{
		ID:         "c-1",
		Lines:      []handler.LineJSON{{ProductID: "prod-1", Quantity: 3}},
		GrandTotal: "78.00",
	}})
	m = next.(cartModel)
	if m.busy || m.quantity("prod-1") != 3 || m.cart.GrandTotal != "78.00" {
		t.Errorf("unexpected model: %+v", m)
	}

	next, _ = m.Update(cartUpdated{err: errors.New("status 502")})
	m = next.(cartModel)
	if m.quantity("prod-1") != 3 {
		t.Error("failed update must keep the previous cart")
	}
}

func TestCartModel_SaveKeepsCartOnFailure(t *testing.T) {
	m := testModel()
	m.cart.Lines = []handler.LineJSON{{ProductID: "prod-2", Quantity: 1}}

	next, cmd := m.Update(cartSaved{err: errors.New("status 502: record store unavailable")})
	m = next.(cartModel)
	if cmd != nil {
		t.Error("failed save must not quit")
	}
	if m.receipt != "" || m.quantity("prod-2") != 1 {
		t.Errorf("unexpected model after failed save: %+v", m)
	}

	next, cmd = m.Update(cartSaved{res: handler.DeliveryResponse{Receipt: "Delivery Receipt"}})
	if next.(cartModel).receipt != "Delivery Receipt" || cmd == nil {
		t.Error("successful save must keep the receipt and quit")
	}
}

func TestCartModel_SaveEmptyCartIgnored(t *testing.T) {
	m := testModel()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd != nil || next.(cartModel).busy {
		t.Error("empty cart must not be saved")
	}
}
