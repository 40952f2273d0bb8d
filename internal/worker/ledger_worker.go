package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/ledger"
	"github.com/flicky/agrichain-api/internal/model"
)

const idempotencyTTL = 24 * time.Hour

// Deduper remembers which events have already been anchored.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	return d.client.Set(ctx, key, "1", idempotencyTTL).Err()
}

// MemoryDeduper is used when Redis is disabled. It does not survive restarts.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = struct{}{}
	return nil
}

// LedgerWorker consumes custody events and anchors the milestones on the ledger.
type LedgerWorker struct {
	channel *amqp.Channel
	ledger  ledger.Ledger
	deduper Deduper
	log     *slog.Logger
	done    chan struct{}
}

func NewLedgerWorker(ch *amqp.Channel, l ledger.Ledger, deduper Deduper, log *slog.Logger) *LedgerWorker {
	return &LedgerWorker{
		channel: ch,
		ledger:  l,
		deduper: deduper,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (w *LedgerWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(events.LedgerQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("ledger worker started")
	return nil
}

func (w *LedgerWorker) Stop() { close(w.done) }

func (w *LedgerWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var ev model.CustodyEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		w.log.Error("unmarshal custody event", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("event_id", ev.ID, "type", ev.Type, "code", ev.QRCode)

	idempotencyKey := "custody_event:" + ev.ID.String()
	seen, err := w.deduper.Seen(ctx, idempotencyKey)
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if seen {
		log.Info("event already anchored, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.anchor(ctx, ev); err != nil {
		log.Error("anchor event failed", "error", err)
		_ = msg.Nack(false, false) // to DLQ
		return
	}

	if err := w.deduper.Mark(ctx, idempotencyKey); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("event processed")
}

func (w *LedgerWorker) anchor(ctx context.Context, ev model.CustodyEvent) error {
	switch ev.Type {
	case model.EventProductCreated:
		return w.ledger.AddProduct(ctx, ev.QRCode, ev.ProductName, ev.ActorName, ev.Quantity)
	case model.EventTransportApproved:
		return w.ledger.ShipProduct(ctx, ev.QRCode)
	case model.EventRetailApproved:
		return w.ledger.ReceiveProduct(ctx, ev.QRCode)
	}
	return nil
}
