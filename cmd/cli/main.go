package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rl1809/milk-route/internal/adapter/client"
	"github.com/rl1809/milk-route/internal/adapter/share"
	"github.com/rl1809/milk-route/internal/config"
	"github.com/rl1809/milk-route/internal/core/domain"
	coreshare "github.com/rl1809/milk-route/internal/core/share"
)

const usage = `usage: milkroute <command> [flags]

commands:
  products                         list the catalog
  shops    [-date] [-sort] [-pending]  route overview
  balance  -shop ID                outstanding balance of a shop
  summary  [-date]                 day totals across the route
  deliver  -shop ID -item prod-1=3 [-item ...] [-date] [-no-share]
  pay      -shop ID -amount 30.00 [-date] [-no-share]
  cart     -shop ID [-date]        interactive delivery entry
`

// itemsFlag collects repeated -item product=quantity values.
type itemsFlag []string

func (f *itemsFlag) String() string { return strings.Join(*f, ",") }

func (f *itemsFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.LoadCLI()
	logger, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	api := client.New(cfg.APIURL, 10*time.Second)
	dispatcher := coreshare.NewDispatcher(logger,
		share.NewSystemShare(cfg.ShareCommand),
		share.NewDeepLink(cfg.OpenCommand),
		share.NewClipboard(cfg.ClipboardCommand),
		share.NewWriter(os.Stdout),
	)

	if err := run(context.Background(), api, dispatcher, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api *client.Client, dispatcher *coreshare.Dispatcher, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	shopID := fs.String("shop", "", "shop id")
	date := fs.String("date", time.Now().Format(domain.DateLayout), "record date (YYYY-MM-DD)")
	noShare := fs.Bool("no-share", false, "print the receipt instead of sharing it")
	sortBy := fs.String("sort", "route", "shops: route|pending")
	pendingOnly := fs.Bool("pending", false, "shops: only shops with a pending balance")
	amount := fs.String("amount", "", "payment amount")
	var items itemsFlag
	fs.Var(&items, "item", "product=quantity, repeatable")
	fs.Parse(args)

	switch cmd {
	case "products":
		products, err := api.Products(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			fmt.Printf("%-8s %-18s ₹%s\n", p.ID, p.Name, p.UnitPrice)
		}

	case "shops":
		shops, err := api.Shops(ctx, *date, *sortBy, *pendingOnly)
		if err != nil {
			return err
		}
		for _, s := range shops {
			fmt.Printf("%3d %-10s %-16s today ₹%-10s pending ₹%s\n", s.RouteOrder, s.ID, s.Name, s.DeliveredOnDate, s.Pending)
		}

	case "balance":
		if *shopID == "" {
			return fmt.Errorf("-shop is required")
		}
		b, err := api.Balance(ctx, *shopID)
		if err != nil {
			return err
		}
		fmt.Printf("%s pending ₹%s\n", b.ShopID, b.Pending)

	case "summary":
		s, err := api.Summary(ctx, *date)
		if err != nil {
			return err
		}
		fmt.Printf("Date:       %s\n", s.Date)
		fmt.Printf("Delivered:  ₹%s\n", s.Delivered)
		fmt.Printf("Collected:  ₹%s\n", s.Collected)
		fmt.Printf("Pending:    ₹%s\n", s.PendingTotal)
		fmt.Printf("Completed:  %d/%d shops\n", s.CompletedShopCount, s.ShopCount)

	case "deliver":
		if *shopID == "" || len(items) == 0 {
			return fmt.Errorf("-shop and at least one -item are required")
		}
		c, err := api.OpenCart(ctx)
		if err != nil {
			return err
		}
		defer api.DiscardCart(ctx, c.ID)

		for _, item := range items {
			productID, qty, err := parseItem(item)
			if err != nil {
				return err
			}
			if _, err := api.SetQuantity(ctx, c.ID, productID, qty); err != nil {
				return fmt.Errorf("%s: %w", productID, err)
			}
		}
		res, err := api.SaveCart(ctx, c.ID, *shopID, *date)
		if err != nil {
			return err
		}
		return shareReceipt(ctx, dispatcher, res.Receipt, "Delivery Receipt", *noShare)

	case "pay":
		if *shopID == "" || *amount == "" {
			return fmt.Errorf("-shop and -amount are required")
		}
		res, err := api.Pay(ctx, *shopID, *date, *amount)
		if err != nil {
			return err
		}
		return shareReceipt(ctx, dispatcher, res.Receipt, "Payment Receipt", *noShare)

	case "cart":
		if *shopID == "" {
			return fmt.Errorf("-shop is required")
		}
		m, err := newCartModel(ctx, api, *shopID, *date)
		if err != nil {
			return err
		}
		defer api.DiscardCart(ctx, m.cart.ID)

		final, err := tea.NewProgram(m).Run()
		if err != nil {
			return err
		}
		if receipt := final.(cartModel).receipt; receipt != "" {
			return shareReceipt(ctx, dispatcher, receipt, "Delivery Receipt", *noShare)
		}

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseItem(item string) (string, int, error) {
	productID, qty, ok := strings.Cut(item, "=")
	if !ok {
		return "", 0, fmt.Errorf("item %q must be product=quantity", item)
	}
	n, err := strconv.Atoi(qty)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("item %q: quantity must be a non-negative integer", item)
	}
	return strings.TrimSpace(productID), n, nil
}

// shareReceipt hands the receipt to the dispatcher. A cancelled share is not
// an error; the record is already saved.
func shareReceipt(ctx context.Context, d *coreshare.Dispatcher, receipt, title string, noShare bool) error {
	if noShare {
		fmt.Println(receipt)
		return nil
	}
	res := d.Dispatch(ctx, receipt, title)
	switch res.Outcome {
	case coreshare.OutcomeSuccess:
		fmt.Fprintf(os.Stderr, "shared via %s\n", res.Channel)
	case coreshare.OutcomeCancelled:
		fmt.Fprintln(os.Stderr, "share cancelled")
	default:
		return fmt.Errorf("record saved but sharing failed: %s", res.Reason())
	}
	return nil
}
