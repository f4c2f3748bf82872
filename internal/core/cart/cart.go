package cart

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/money"
)

// MaxQuantity caps a single line. Larger quantities are clamped.
const MaxQuantity = 9999

// ProductLookup resolves catalog products. *catalog.Catalog satisfies it.
type ProductLookup interface {
	Find(id string) (domain.Product, bool)
}

type line struct {
	domain.CartLine
	seq uint64 // creation order
}

// Cart holds the quantities of one delivery entry in progress.
// A line with quantity zero is never stored; absence means zero.
type Cart struct {
	ID string

	catalog ProductLookup

	mu      sync.Mutex
	lines   map[string]*line
	nextSeq uint64

	saving atomic.Bool
}

func New(id string, catalog ProductLookup) *Cart {
	return &Cart{
		ID:      id,
		catalog: catalog,
		lines:   make(map[string]*line),
	}
}

// SetQuantity upserts or removes the product's line. It reports false when
// the product is not in the catalog, in which case the cart is unchanged.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(productID, quantity)
}

// Increment raises the quantity, saturating at MaxQuantity.
func (c *Cart) Increment(productID string, delta int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(productID, step(c.quantityLocked(productID), delta))
}

// Decrement lowers the quantity, never below zero.
func (c *Cart) Decrement(productID string, delta int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delta < -MaxQuantity {
		delta = -MaxQuantity
	}
	return c.setLocked(productID, step(c.quantityLocked(productID), -delta))
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]*line)
}

// ClearSaved removes the saved lines whose quantity is unchanged since the
// snapshot was taken. Edits made while the save was in flight are kept.
func (c *Cart) ClearSaved(saved []domain.CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range saved {
		if l, ok := c.lines[s.ProductID]; ok && l.Quantity == s.Quantity {
			delete(c.lines, s.ProductID)
		}
	}
}

func (c *Cart) Quantity(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quantityLocked(productID)
}

func (c *Cart) HasItems() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) > 0
}

// Snapshot returns the lines in creation order.
func (c *Cart) Snapshot() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cart) Totals() domain.Totals {
	return money.Aggregate(c.Snapshot())
}

// View returns a snapshot and the totals derived from that same snapshot.
func (c *Cart) View() ([]domain.CartLine, domain.Totals) {
	lines := c.Snapshot()
	return lines, money.Aggregate(lines)
}

// BeginSave marks a save as in flight. It returns false if one already is.
func (c *Cart) BeginSave() bool {
	return c.saving.CompareAndSwap(false, true)
}

func (c *Cart) EndSave() {
	c.saving.Store(false)
}

func (c *Cart) SavePending() bool {
	return c.saving.Load()
}

// setLocked upserts a line. An existing line keeps the price it was created
// with; only the quantity changes.
func (c *Cart) setLocked(productID string, quantity int) bool {
	if quantity > MaxQuantity {
		quantity = MaxQuantity
	}
	if quantity <= 0 {
		if _, ok := c.catalog.Find(productID); !ok {
			return false
		}
		delete(c.lines, productID)
		return true
	}

	if existing, ok := c.lines[productID]; ok {
		existing.Quantity = quantity
		return true
	}

	p, ok := c.catalog.Find(productID)
	if !ok {
		return false
	}
	c.nextSeq++
	c.lines[productID] = &line{
		CartLine: domain.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  quantity,
		},
		seq: c.nextSeq,
	}
	return true
}

// step adds delta to a quantity in [0, MaxQuantity] without overflowing.
func step(cur, delta int) int {
	switch {
	case delta > MaxQuantity-cur:
		return MaxQuantity
	case delta < -cur:
		return 0
	}
	return cur + delta
}

func (c *Cart) quantityLocked(productID string) int {
	if l, ok := c.lines[productID]; ok {
		return l.Quantity
	}
	return 0
}

func (c *Cart) snapshotLocked() []domain.CartLine {
	ordered := make([]*line, 0, len(c.lines))
	for _, l := range c.lines {
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	out := make([]domain.CartLine, len(ordered))
	for i, l := range ordered {
		out[i] = l.CartLine
	}
	return out
}

// ValidateQuantity rejects negative or oversized quantities and deltas at the
// caller boundary.
func ValidateQuantity(field string, q int) error {
	if q < 0 {
		return domain.NewValidationError(field, "must not be negative")
	}
	if q > MaxQuantity {
		return domain.NewValidationError(field, fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	return nil
}
