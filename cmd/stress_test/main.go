package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/milk-route/internal/adapter/storage"
	"github.com/rl1809/milk-route/internal/core/cart"
	"github.com/rl1809/milk-route/internal/core/catalog"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/ledger"
	"github.com/rl1809/milk-route/internal/core/money"
	"github.com/rl1809/milk-route/internal/core/service"
	"github.com/rl1809/milk-route/internal/port"
)

const date = "2026-10-18"

func main() {
	shopCount := flag.Int("shops", 20, "number of shops on the route")
	deliveriesPerShop := flag.Int("deliveries", 25, "concurrent deliveries per shop")
	paymentsPerShop := flag.Int("payments", 25, "concurrent payment attempts per shop")
	redisAddr := flag.String("redis", "", "redis address for idempotency keys (in-memory when empty)")
	flag.Parse()

	logger, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	ctx := context.Background()

	store := storage.NewMemoryAdapter()
	store.SeedShops(*shopCount)

	var cache port.CacheRepository = store
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.Ping(ctx); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		cache = redisAdapter
	}

	cat := catalog.Default()
	ledgerService := service.NewLedgerService(store, cache, ledger.NewReconciler(store, 8), service.Options{Logger: logger})

	// Counters
	var delivered, paid, rejected, inFlight atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for s := 1; s <= *shopCount; s++ {
		shopID := fmt.Sprintf("shop-%d", s)

		for i := 0; i < *deliveriesPerShop; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				c := cart.New(fmt.Sprintf("%s-%d", shopID, i), cat)
				c.SetQuantity("prod-1", 1+i%3)
				c.SetQuantity("prod-2", i%4)

				_, err := ledgerService.SaveDelivery(ctx, service.DeliveryRequest{ShopID: shopID, Date: date, Cart: c})
				if err == nil {
					delivered.Add(1)
				}
			}(i)
		}

		for i := 0; i < *paymentsPerShop; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, err := ledgerService.SavePayment(ctx, service.PaymentRequest{
					ShopID: shopID,
					Date:   date,
					Amount: decimal.RequireFromString("20.00"),
				})
				switch {
				case err == nil:
					paid.Add(1)
				case errors.Is(err, service.ErrPaymentExceedsBalance):
					rejected.Add(1)
				}
			}()
		}
	}

	// Double submission of one cart: exactly one save may win, the rest see
	// either the in-flight save or the cleared cart.
	shared := cart.New("shared", cat)
	shared.SetQuantity("prod-4", 2)
	var sharedWins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledgerService.SaveDelivery(ctx, service.DeliveryRequest{ShopID: "shop-1", Date: date, Cart: shared})
			switch {
			case err == nil:
				sharedWins.Add(1)
			case errors.Is(err, domain.ErrSaveInProgress), errors.Is(err, service.ErrEmptyCart):
				inFlight.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Reconcile
	deliveries, _ := store.ListDeliveries(ctx, domain.RecordFilter{})
	payments, _ := store.ListPayments(ctx, domain.RecordFilter{})
	expected := ledger.Balance(deliveries, payments)

	summary, err := ledgerService.Summary(ctx, date)
	if err != nil {
		logger.Fatal("summary failed", zap.Error(err))
	}

	negative := 0
	statuses, _ := ledgerService.ShopStatuses(ctx, date, ledger.StatusOptions{})
	for _, st := range statuses {
		if st.Pending.IsNegative() {
			negative++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Shops:               %d\n", *shopCount)
	fmt.Printf("Deliveries saved:    %d\n", delivered.Load())
	fmt.Printf("Payments saved:      %d\n", paid.Load())
	fmt.Printf("Payments rejected:   %d\n", rejected.Load())
	fmt.Printf("Shared cart wins:    %d (rejected: %d)\n", sharedWins.Load(), inFlight.Load())
	fmt.Printf("Pending total:       %s\n", money.Format(summary.PendingTotal))
	fmt.Printf("Duration:            %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if !summary.PendingTotal.Equal(expected) {
		fmt.Printf("FAIL: summary pending %s, records reconcile to %s\n", money.Format(summary.PendingTotal), money.Format(expected))
		failed = true
	} else {
		fmt.Println("PASS: summary reconciles with stored records")
	}
	if negative > 0 {
		fmt.Printf("FAIL: %d shops have a negative balance\n", negative)
		failed = true
	} else {
		fmt.Println("PASS: no shop overpaid")
	}
	if sharedWins.Load() != 1 || sharedWins.Load()+inFlight.Load() != 10 {
		fmt.Printf("FAIL: shared cart saved %d times\n", sharedWins.Load())
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
