package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/adapter/storage"
	"github.com/rl1809/milk-route/internal/core/cart"
	"github.com/rl1809/milk-route/internal/core/catalog"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/ledger"
	"github.com/rl1809/milk-route/internal/core/money"
	"github.com/rl1809/milk-route/internal/core/service"
)

type ledgerTestContext struct {
	store   *storage.MemoryAdapter
	svc     *service.LedgerService
	cart    *cart.Cart
	pending decimal.Decimal
	receipt string
	err     error
}

func (c *ledgerTestContext) reset() {
	c.store = storage.NewMemoryAdapter()
	c.svc = service.NewLedgerService(c.store, c.store, ledger.NewReconciler(c.store, 4), service.Options{})
	c.cart = nil
	c.pending = decimal.Zero
	c.receipt = ""
	c.err = nil
}

func (c *ledgerTestContext) aRouteWithShops(n int) error {
	c.store.SeedShops(n)
	return nil
}

func (c *ledgerTestContext) anEmptyCart() error {
	c.cart = cart.New("feature", catalog.Default())
	return nil
}

func (c *ledgerTestContext) iSetInTheCart(productID string, quantity int) error {
	c.cart.SetQuantity(productID, quantity)
	return nil
}

func (c *ledgerTestContext) theCartSubtotalIs(want string) error {
	if got := money.Format(c.cart.Totals().Subtotal); got != want {
		return fmt.Errorf("expected subtotal %s, got %s", want, got)
	}
	return nil
}

func (c *ledgerTestContext) theCartHasNoItems() error {
	if c.cart.HasItems() {
		return fmt.Errorf("expected empty cart, got %d lines", len(c.cart.Snapshot()))
	}
	return nil
}

func (c *ledgerTestContext) iSaveTheCartAsADelivery(shopID, date string) error {
	res, err := c.svc.SaveDelivery(context.Background(), service.DeliveryRequest{ShopID: shopID, Date: date, Cart: c.cart})
	c.err = err
	if err == nil {
		c.pending = res.PendingAfter
		c.receipt = res.Receipt
	}
	return nil
}

func (c *ledgerTestContext) iRecordAPayment(amount, shopID, date string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	res, err := c.svc.SavePayment(context.Background(), service.PaymentRequest{ShopID: shopID, Date: date, Amount: d})
	c.err = err
	if err == nil {
		c.pending = res.PendingAfter
		c.receipt = res.Receipt
	}
	return nil
}

func (c *ledgerTestContext) theSaveSucceeds() error {
	return c.err
}

func (c *ledgerTestContext) theSaveFailsWithAValidationError() error {
	if c.err == nil {
		return errors.New("expected the save to fail")
	}
	if !domain.IsValidation(c.err) {
		return fmt.Errorf("expected validation error, got %v", c.err)
	}
	return nil
}

func (c *ledgerTestContext) thePendingAfterSaveIs(want string) error {
	if got := money.Format(c.pending); got != want {
		return fmt.Errorf("expected pending %s, got %s", want, got)
	}
	return nil
}

func (c *ledgerTestContext) theReceiptContains(text string) error {
	if !strings.Contains(c.receipt, text) {
		return fmt.Errorf("receipt does not contain %q:\n%s", text, c.receipt)
	}
	return nil
}

func (c *ledgerTestContext) theBalanceOfIs(shopID, want string) error {
	got, err := c.svc.Balance(context.Background(), shopID)
	if err != nil {
		return err
	}
	if money.Format(got) != want {
		return fmt.Errorf("expected balance %s, got %s", want, money.Format(got))
	}
	return nil
}

func (c *ledgerTestContext) theSummaryShowsAmounts(date, delivered, collected, pending string) error {
	s, err := c.svc.Summary(context.Background(), date)
	if err != nil {
		return err
	}
	got := []string{money.Format(s.Delivered), money.Format(s.Collected), money.Format(s.PendingTotal)}
	want := []string{delivered, collected, pending}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected delivered/collected/pending %v, got %v", want, got)
		}
	}
	return nil
}

func (c *ledgerTestContext) theSummaryShowsCompleted(date string, completed, total int) error {
	s, err := c.svc.Summary(context.Background(), date)
	if err != nil {
		return err
	}
	if s.CompletedShopCount != completed || s.ShopCount != total {
		return fmt.Errorf("expected %d of %d completed, got %d of %d", completed, total, s.CompletedShopCount, s.ShopCount)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &ledgerTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a route with (\d+) shops$`, tc.aRouteWithShops)
	ctx.Step(`^an empty cart$`, tc.anEmptyCart)
	ctx.Step(`^I set "([^"]*)" to (\d+) in the cart$`, tc.iSetInTheCart)
	ctx.Step(`^I save the cart as a delivery for "([^"]*)" on "([^"]*)"$`, tc.iSaveTheCartAsADelivery)
	ctx.Step(`^I record a payment of "([^"]*)" for "([^"]*)" on "([^"]*)"$`, tc.iRecordAPayment)

	ctx.Step(`^the cart subtotal is "([^"]*)"$`, tc.theCartSubtotalIs)
	ctx.Step(`^the cart has no items$`, tc.theCartHasNoItems)
	ctx.Step(`^the cart is empty$`, tc.theCartHasNoItems)
	ctx.Step(`^the save succeeds$`, tc.theSaveSucceeds)
	ctx.Step(`^the save fails with a validation error$`, tc.theSaveFailsWithAValidationError)
	ctx.Step(`^the pending after save is "([^"]*)"$`, tc.thePendingAfterSaveIs)
	ctx.Step(`^the receipt contains "([^"]*)"$`, tc.theReceiptContains)
	ctx.Step(`^the balance of "([^"]*)" is "([^"]*)"$`, tc.theBalanceOfIs)
	ctx.Step(`^the summary for "([^"]*)" shows delivered "([^"]*)" collected "([^"]*)" pending "([^"]*)"$`, tc.theSummaryShowsAmounts)
	ctx.Step(`^the summary for "([^"]*)" shows (\d+) of (\d+) shops completed$`, tc.theSummaryShowsCompleted)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../../features/ledger.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
