package cart

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/catalog"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/money"
)

// mutableCatalog lets a test change a price after a line was created.
type mutableCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMutableCatalog(products ...domain.Product) *mutableCatalog {
	m := &mutableCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mutableCatalog) Find(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	return p, ok
}

func (m *mutableCatalog) setPrice(id, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.UnitPrice = decimal.RequireFromString(price)
	m.products[id] = p
}

func TestSetQuantity_Subtotal(t *testing.T) {
	c := New("c1", catalog.Default())

	if !c.SetQuantity("prod-1", 3) {
		t.Fatal("expected prod-1 to be accepted")
	}

	totals := c.Totals()
	if money.Format(totals.Subtotal) != "78.00" {
		t.Errorf("expected subtotal 78.00, got %s", money.Format(totals.Subtotal))
	}
	if !c.HasItems() {
		t.Error("expected cart to have items")
	}
}

func TestSetQuantity_UnknownProductIsNoop(t *testing.T) {
	c := New("c1", catalog.Default())

	if c.SetQuantity("unknown-id", 5) {
		t.Error("expected unknown product to be rejected")
	}
	if c.HasItems() {
		t.Error("expected cart to stay empty")
	}
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	c := New("c1", catalog.Default())
	c.SetQuantity("prod-1", 2)
	c.SetQuantity("prod-2", 1)

	c.SetQuantity("prod-1", 0)

	for _, l := range c.Snapshot() {
		if l.ProductID == "prod-1" {
			t.Fatal("expected prod-1 to be removed")
		}
	}

	c.SetQuantity("prod-2", -4)
	if c.HasItems() {
		t.Error("expected negative quantity to remove the line")
	}
}

func TestSetQuantity_Idempotent(t *testing.T) {
	once := New("c", catalog.Default())
	once.SetQuantity("prod-4", 2)

	twice := New("c", catalog.Default())
	twice.SetQuantity("prod-4", 2)
	twice.SetQuantity("prod-4", 2)

	if !reflect.DeepEqual(once.Snapshot(), twice.Snapshot()) {
		t.Errorf("snapshots differ: %+v vs %+v", once.Snapshot(), twice.Snapshot())
	}
}

func TestDecrement_NeverNegative(t *testing.T) {
	for start := 0; start <= 5; start++ {
		for delta := 0; delta <= 8; delta++ {
			c := New("c", catalog.Default())
			c.SetQuantity("prod-3", start)
			c.Decrement("prod-3", delta)

			q := c.Quantity("prod-3")
			if q < 0 {
				t.Fatalf("start=%d delta=%d: negative quantity %d", start, delta, q)
			}
			want := start - delta
			if want < 0 {
				want = 0
			}
			if q != want {
				t.Errorf("start=%d delta=%d: expected %d, got %d", start, delta, want, q)
			}
		}
	}
}

func TestIncrement(t *testing.T) {
	c := New("c", catalog.Default())
	c.Increment("prod-5", 1)
	c.Increment("prod-5", 2)

	if c.Quantity("prod-5") != 3 {
		t.Errorf("expected 3, got %d", c.Quantity("prod-5"))
	}
	if c.Increment("nope", 1) {
		t.Error("expected unknown product increment to be rejected")
	}
}

func TestClear(t *testing.T) {
	c := New("c", catalog.Default())
	c.SetQuantity("prod-1", 1)
	c.SetQuantity("prod-2", 1)

	c.Clear()

	if c.HasItems() || len(c.Snapshot()) != 0 {
		t.Error("expected empty cart after clear")
	}
	if !c.Totals().Subtotal.IsZero() {
		t.Error("expected zero subtotal after clear")
	}
}

func TestSnapshot_CreationOrder(t *testing.T) {
	c := New("c", catalog.Default())
	c.SetQuantity("prod-6", 1)
	c.SetQuantity("prod-2", 1)
	c.SetQuantity("prod-4", 1)
	c.SetQuantity("prod-6", 5) // update keeps position

	got := []string{}
	for _, l := range c.Snapshot() {
		got = append(got, l.ProductID)
	}
	want := []string{"prod-6", "prod-2", "prod-4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
}

func TestPriceCapturedAtCreation(t *testing.T) {
	cat := newMutableCatalog(domain.Product{ID: "p", Name: "Milk", UnitPrice: decimal.RequireFromString("26.00")})
	c := New("c", cat)
	c.SetQuantity("p", 2)

	cat.setPrice("p", "30.00")
	c.SetQuantity("p", 3)

	lines := c.Snapshot()
	if lines[0].UnitPrice.StringFixed(2) != "26.00" {
		t.Errorf("expected captured price 26.00, got %s", lines[0].UnitPrice.StringFixed(2))
	}
	if money.Format(c.Totals().Subtotal) != "78.00" {
		t.Errorf("expected subtotal 78.00, got %s", money.Format(c.Totals().Subtotal))
	}
}

func TestSubtotalMatchesRecomputation(t *testing.T) {
	cat := catalog.Default()
	products := cat.List()
	rng := rand.New(rand.NewSource(42))
	c := New("c", cat)

	for i := 0; i < 500; i++ {
		p := products[rng.Intn(len(products))]
		c.SetQuantity(p.ID, rng.Intn(12)-2)

		lines, totals := c.View()
		expected := decimal.Zero
		for _, l := range lines {
			if l.Quantity <= 0 {
				t.Fatalf("line with quantity %d stored", l.Quantity)
			}
			expected = expected.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2))
		}
		if !totals.Subtotal.Equal(expected.Round(2)) {
			t.Fatalf("step %d: subtotal %s != recomputed %s", i, totals.Subtotal, expected)
		}
	}
}

func TestConcurrentMutations(t *testing.T) {
	c := New("c", catalog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment("prod-1", 1)
			_, _ = c.View()
		}()
	}
	wg.Wait()

	if c.Quantity("prod-1") != 50 {
		t.Errorf("expected 50, got %d", c.Quantity("prod-1"))
	}
}

func TestBeginSave(t *testing.T) {
	c := New("c", catalog.Default())

	if !c.BeginSave() {
		t.Fatal("expected first BeginSave to succeed")
	}
	if c.BeginSave() {
		t.Error("expected second BeginSave to fail while pending")
	}
	if !c.SavePending() {
		t.Error("expected save to be pending")
	}

	c.EndSave()
	if c.SavePending() {
		t.Error("expected save to be cleared")
	}
}

func TestValidateQuantity(t *testing.T) {
	if err := ValidateQuantity("quantity", 0); err != nil {
		t.Errorf("expected zero to be valid, got %v", err)
	}
	if err := ValidateQuantity("quantity", -1); !domain.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := ValidateQuantity("delta", MaxQuantity); err != nil {
		t.Errorf("expected MaxQuantity to be valid, got %v", err)
	}
	if err := ValidateQuantity("delta", math.MaxInt); !domain.IsValidation(err) {
		t.Errorf("expected validation error for an oversized delta, got %v", err)
	}
}

func TestIncrement_SaturatesInsteadOfWrapping(t *testing.T) {
	c := New("c", catalog.Default())

	c.SetQuantity("prod-1", math.MaxInt)
	if q := c.Quantity("prod-1"); q != MaxQuantity {
		t.Fatalf("expected quantity clamped to %d, got %d", MaxQuantity, q)
	}
	if !c.Increment("prod-1", 1) || !c.Increment("prod-1", math.MaxInt) {
		t.Fatal("expected increments to apply")
	}
	if q := c.Quantity("prod-1"); q != MaxQuantity || !c.HasItems() {
		t.Errorf("expected line kept at %d, got %d (has items %v)", MaxQuantity, q, c.HasItems())
	}

	c.Decrement("prod-1", math.MinInt)
	if q := c.Quantity("prod-1"); q != MaxQuantity {
		t.Errorf("expected %d after negative decrement, got %d", MaxQuantity, q)
	}
	c.Decrement("prod-1", math.MaxInt)
	if c.HasItems() {
		t.Error("expected line removed after decrementing past zero")
	}
}

func TestClearSaved_KeepsEditsMadeAfterSnapshot(t *testing.T) {
	c := New("c", catalog.Default())
	c.SetQuantity("prod-1", 3)
	c.SetQuantity("prod-3", 1)

	saved := c.Snapshot()
	c.SetQuantity("prod-2", 4) // added during the save
	c.SetQuantity("prod-3", 2) // changed during the save

	c.ClearSaved(saved)

	if c.Quantity("prod-1") != 0 {
		t.Error("expected saved line to be removed")
	}
	if c.Quantity("prod-2") != 4 || c.Quantity("prod-3") != 2 {
		t.Errorf("expected later edits kept, got prod-2=%d prod-3=%d", c.Quantity("prod-2"), c.Quantity("prod-3"))
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(catalog.Default())

	a := r.Open()
	b := r.Open()
	if a.ID == b.ID {
		t.Fatal("expected distinct cart IDs")
	}

	a.SetQuantity("prod-1", 1)
	if b.HasItems() {
		t.Error("carts must not share lines")
	}

	got, err := r.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("expected to get cart a, err=%v", err)
	}

	if err := r.Discard(a.ID); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if _, err := r.Get(a.ID); !errors.Is(err, domain.ErrCartNotFound) {
		t.Errorf("expected ErrCartNotFound, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 open cart, got %d", r.Len())
	}
}
