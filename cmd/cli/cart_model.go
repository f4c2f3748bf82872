package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rl1809/milk-route/internal/adapter/client"
	"github.com/rl1809/milk-route/internal/adapter/handler"
)

// cartModel is the interactive delivery entry screen. Every change goes
// through the server so totals always come from the ledger service.
type cartModel struct {
	ctx      context.Context
	api      *client.Client
	shopID   string
	date     string
	products []handler.ProductJSON
	cart     handler.CartJSON
	cursor   int
	status   string
	busy     bool
	receipt  string
}

type cartUpdated struct {
	cart handler.CartJSON
	err  error
}

type cartSaved struct {
	res handler.DeliveryResponse
	err error
}

func newCartModel(ctx context.Context, api *client.Client, shopID, date string) (cartModel, error) {
	products, err := api.Products(ctx)
	if err != nil {
		return cartModel{}, err
	}
	c, err := api.OpenCart(ctx)
	if err != nil {
		return cartModel{}, err
	}
	return cartModel{
		ctx:      ctx,
		api:      api,
		shopID:   shopID,
		date:     date,
		products: products,
		cart:     c,
		status:   "Ready",
	}, nil
}

func (m cartModel) Init() tea.Cmd {
	return nil
}

func (m cartModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down":
			if m.cursor < len(m.products)-1 {
				m.cursor++
			}
		case "right", "+":
			return m.setQuantity(m.quantity(m.products[m.cursor].ID) + 1)
		case "left", "-":
			if q := m.quantity(m.products[m.cursor].ID); q > 0 {
				return m.setQuantity(q - 1)
			}
		case "s", "enter":
			if m.busy || len(m.cart.Lines) == 0 {
				return m, nil
			}
			m.busy = true
			m.status = "Saving..."
			return m, m.saveCmd()
		}
	case cartUpdated:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Update failed: %v", msg.err)
			return m, nil
		}
		m.cart = msg.cart
		m.status = "Ready"
	case cartSaved:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Save failed, cart kept: %v", msg.err)
			return m, nil
		}
		m.receipt = msg.res.Receipt
		return m, tea.Quit
	}
	return m, nil
}

func (m cartModel) View() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Delivery for %s on %s\n\n", m.shopID, m.date)
	for i, p := range m.products {
		marker := " "
		if i == m.cursor {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-18s ₹%-7s x %d\n", marker, p.Name, p.UnitPrice, m.quantity(p.ID))
	}
	fmt.Fprintf(b, "\nTotal: ₹%s\n", m.cart.GrandTotal)
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select, left/right change quantity, s to save, q to quit")
	return b.String()
}

func (m cartModel) quantity(productID string) int {
	for _, l := range m.cart.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func (m cartModel) setQuantity(q int) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	productID := m.products[m.cursor].ID
	return m, func() tea.Msg {
		c, err := m.api.SetQuantity(m.ctx, m.cart.ID, productID, q)
		return cartUpdated{cart: c, err: err}
	}
}

func (m cartModel) saveCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.SaveCart(m.ctx, m.cart.ID, m.shopID, m.date)
		return cartSaved{res: res, err: err}
	}
}
