package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/milk-route/internal/adapter/events"
	"github.com/rl1809/milk-route/internal/adapter/handler"
	"github.com/rl1809/milk-route/internal/adapter/storage"
	"github.com/rl1809/milk-route/internal/config"
	"github.com/rl1809/milk-route/internal/core/cart"
	"github.com/rl1809/milk-route/internal/core/catalog"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/ledger"
	"github.com/rl1809/milk-route/internal/core/service"
	"github.com/rl1809/milk-route/internal/metrics"
	"github.com/rl1809/milk-route/internal/port"
)

const healthInterval = 10 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deps []pinger

	// Record store
	var store port.RecordStore
	var db *sql.DB
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := storage.NewMemoryAdapter()
		mem.SeedShops(cfg.SeedShops)
		store = mem
		logger.Info("using in-memory store", zap.Int("shops", cfg.SeedShops))
	default:
		dialect, err := storage.ParseDialect(cfg.StoreDriver)
		if err != nil {
			logger.Fatal("invalid store driver", zap.Error(err))
		}
		dsn, err := dialect.DSN(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("invalid database dsn", zap.Error(err))
		}
		db, err = sql.Open(dialect.DriverName(), dsn)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		sqlAdapter := storage.NewSQLAdapter(db, dialect)
		if err := sqlAdapter.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.String("driver", cfg.StoreDriver), zap.Error(err))
		}
		logger.Info("connected to database", zap.String("driver", cfg.StoreDriver))

		if err := sqlAdapter.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		if err := seedShops(ctx, sqlAdapter, cfg.SeedShops); err != nil {
			logger.Fatal("failed to seed shops", zap.Error(err))
		}
		store = sqlAdapter
		deps = append(deps, sqlAdapter)
	}

	// Idempotency cache
	var cache port.CacheRepository
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.Ping(ctx); err != nil {
			logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cache = redisAdapter
		deps = append(deps, redisAdapter)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else if mem, ok := store.(*storage.MemoryAdapter); ok {
		cache = mem
	} else {
		cache = storage.NewMemoryAdapter()
	}

	// Event publisher
	var publisher port.EventPublisher
	kafkaPublisher := events.NewKafkaPublisher(events.NewClient(cfg.KafkaBrokers), cfg.KafkaTopic)
	if kafkaPublisher.Enabled() {
		publisher = kafkaPublisher
		logger.Info("publishing ledger events", zap.String("topic", cfg.KafkaTopic))
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	// Initialize service
	cat := catalog.Default()
	reconciler := ledger.NewReconciler(store, cfg.SummaryConcurrency)
	ledgerService := service.NewLedgerService(store, cache, reconciler, service.Options{
		QueueSize:    cfg.EventQueueSize,
		BusinessName: cfg.BusinessName,
		Logger:       logger,
	})

	// Start worker pool
	workers := events.StartWorkers(cfg.WorkerCount, ledgerService.Events(), publisher, cfg.RequestTimeout, logger)
	logger.Info("started event workers", zap.Int("count", cfg.WorkerCount))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	go watchHealth(ctx, healthServer, deps, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	serverMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer)
	httpHandler := handler.NewHTTPHandler(ledgerService, cart.NewRegistry(cat), cat, serverMetrics, logger, cfg.RequestTimeout)
	r := mux.NewRouter()
	httpHandler.RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close event queue and wait for workers
	ledgerService.Close()
	workers.Wait()
	logger.Info("workers stopped")

	// Close connections
	if err := kafkaPublisher.Close(); err != nil {
		logger.Warn("kafka writer close", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}

// seedShops fills an empty shops table with "Shop 1".."Shop n".
func seedShops(ctx context.Context, a *storage.SQLAdapter, n int) error {
	shops, err := a.ListShops(ctx)
	if err != nil || len(shops) > 0 {
		return err
	}
	for i := 1; i <= n; i++ {
		if err := a.AddShop(ctx, domain.Shop{
			ID:         fmt.Sprintf("shop-%d", i),
			Name:       fmt.Sprintf("Shop %d", i),
			RouteOrder: i,
		}); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// watchHealth flips the gRPC health status when a backing service stops
// answering pings.
func watchHealth(ctx context.Context, hs *health.Server, deps []pinger, logger *zap.Logger) {
	if len(deps) == 0 {
		return
	}
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		healthy := true
		for _, d := range deps {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := d.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warn("dependency ping failed", zap.Error(err))
				healthy = false
				break
			}
		}

		if healthy == serving {
			continue
		}
		serving = healthy
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if !healthy {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
	}
}
