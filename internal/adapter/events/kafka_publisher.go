package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/money"
)

var ErrDisabled = errors.New("kafka disabled")

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Client struct {
	Brokers []string
}

// NewClient parses a comma separated broker list. An empty list disables
// publishing.
func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Payload is the JSON body of a ledger event message. Amounts are fixed two
// decimal strings.
type Payload struct {
	Type         string    `json:"type"`
	RecordID     string    `json:"record_id"`
	ShopID       string    `json:"shop_id"`
	Date         string    `json:"date"`
	Amount       string    `json:"amount"`
	PendingAfter string    `json:"pending_after"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewPayload(ev domain.LedgerEvent) Payload {
	return Payload{
		Type:         string(ev.Type),
		RecordID:     ev.RecordID,
		ShopID:       ev.ShopID,
		Date:         ev.Date,
		Amount:       money.Format(ev.Amount),
		PendingAfter: money.Format(ev.PendingAfter),
		OccurredAt:   ev.OccurredAt.UTC(),
	}
}

// KafkaPublisher writes ledger events keyed by shop ID so one shop's events
// land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(c *Client, topic string) *KafkaPublisher {
	if !c.Enabled() {
		return &KafkaPublisher{}
	}
	return &KafkaPublisher{writer: c.NewWriter(topic)}
}

func (p *KafkaPublisher) Enabled() bool {
	return p.writer != nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.LedgerEvent) error {
	if p.writer == nil {
		return ErrDisabled
	}
	return PublishJSON(ctx, p.writer, ev.ShopID, NewPayload(ev))
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func PublishJSON(ctx context.Context, writer messageWriter, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}
