package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/agrichain-api/internal/ledger"
	"github.com/flicky/agrichain-api/internal/model"
)

type ackResult struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAcknowledger struct{ res *ackResult }

func (f fakeAcknowledger) Ack(uint64, bool) error { f.res.acked = true; return nil }

func (f fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.res.nacked = true
	f.res.requeue = requeue
	return nil
}

func (f fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.res.nacked = true
	f.res.requeue = requeue
	return nil
}

func delivery(t *testing.T, body []byte) (amqp.Delivery, *ackResult) {
	t.Helper()
	res := &ackResult{}
	return amqp.Delivery{Acknowledger: fakeAcknowledger{res: res}, Body: body}, res
}

func event(t *testing.T, typ, code string) []byte {
	t.Helper()
	b, err := json.Marshal(model.CustodyEvent{
		ID: uuid.New(), Type: typ, ProductID: uuid.New(), ProductName: "Rice",
		QRCode: code, ActorName: "Asha", Quantity: "100", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	return b
}

func newTestWorker() (*LedgerWorker, *ledger.LogLedger) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.NewLogLedger(log)
	return NewLedgerWorker(nil, l, NewMemoryDeduper(), log), l
}

func TestLedgerWorker_AnchorsMilestones(t *testing.T) {
	w, l := newTestWorker()
	ctx := context.Background()

	for _, typ := range []string{
		model.EventProductCreated, model.EventTransportRequested,
		model.EventTransportApproved, model.EventRetailApproved,
	} {
		msg, res := delivery(t, event(t, typ, "AGRI-1"))
		w.processMessage(ctx, msg)
		assert.True(t, res.acked, typ)
	}
	assert.Equal(t, ledger.StateReceived, l.State("AGRI-1"))
}

func TestLedgerWorker_SkipsDuplicates(t *testing.T) {
	w, l := newTestWorker()
	ctx := context.Background()
	body := event(t, model.EventProductCreated, "AGRI-2")

	first, res1 := delivery(t, body)
	w.processMessage(ctx, first)
	second, res2 := delivery(t, body)
	w.processMessage(ctx, second)

	assert.True(t, res1.acked)
	assert.True(t, res2.acked)
	assert.False(t, res2.nacked)
	assert.Equal(t, ledger.StateCreated, l.State("AGRI-2"))
}

func TestLedgerWorker_DeadLettersFailures(t *testing.T) {
	w, _ := newTestWorker()
	ctx := context.Background()

	bad, res := delivery(t, []byte("{not json"))
	w.processMessage(ctx, bad)
	assert.True(t, res.nacked)
	assert.False(t, res.requeue)

	orphan, res := delivery(t, event(t, model.EventTransportApproved, "AGRI-UNKNOWN"))
	w.processMessage(ctx, orphan)
	assert.True(t, res.nacked)
	assert.False(t, res.requeue)
}

func TestLedgerWorker_RedisDeduperSkipsDuplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.NewLogLedger(log)
	w := NewLedgerWorker(nil, l, NewRedisDeduper(client), log)
	ctx := context.Background()

	body := event(t, model.EventProductCreated, "AGRI-3")
	var ev model.CustodyEvent
	require.NoError(t, json.Unmarshal(body, &ev))
	key := "custody_event:" + ev.ID.String()

	first, res1 := delivery(t, body)
	w.processMessage(ctx, first)
	assert.True(t, res1.acked)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, idempotencyTTL, mr.TTL(key))

	// A redelivery after the ledger accepted the event would fail the
	// created-once check if it were anchored again.
	second, res2 := delivery(t, body)
	w.processMessage(ctx, second)
	assert.True(t, res2.acked)
	assert.False(t, res2.nacked)
	assert.Equal(t, ledger.StateCreated, l.State("AGRI-3"))
}
