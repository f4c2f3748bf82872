package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/port"
)

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev domain.LedgerEvent) error {
	p.logger.Debug("ledger event",
		zap.String("type", string(ev.Type)),
		zap.String("record_id", ev.RecordID),
		zap.String("shop_id", ev.ShopID),
	)
	return nil
}

// StartWorkers drains queue with n workers until it is closed. The returned
// WaitGroup is done once every worker has exited.
func StartWorkers(n int, queue <-chan domain.LedgerEvent, pub port.EventPublisher, timeout time.Duration, logger *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, pub, timeout, logger)
		}(i)
	}
	return &wg
}

func workerLoop(id int, queue <-chan domain.LedgerEvent, pub port.EventPublisher, timeout time.Duration, logger *zap.Logger) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		if err := pub.Publish(ctx, ev); err != nil {
			logger.Error("failed to publish ledger event",
				zap.Int("worker", id),
				zap.String("type", string(ev.Type)),
				zap.String("record_id", ev.RecordID),
				zap.Error(err),
			)
		} else {
			logger.Debug("published ledger event",
				zap.Int("worker", id),
				zap.String("record_id", ev.RecordID),
			)
		}

		cancel()
	}
}
