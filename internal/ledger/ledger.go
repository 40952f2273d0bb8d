package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Ledger anchors custody milestones to an external record keeper. The calls
// mirror the custody chaincode's transactions.
type Ledger interface {
	AddProduct(ctx context.Context, code, name, farmer, quantity string) error
	ShipProduct(ctx context.Context, code string) error
	ReceiveProduct(ctx context.Context, code string) error
}

const (
	StateCreated  = "created"
	StateShipped  = "shipped"
	StateReceived = "received"
)

// LogLedger keeps the last known state per code in memory and logs each call.
// It enforces the same ordering as the chaincode.
type LogLedger struct {
	mu     sync.Mutex
	states map[string]string
	log    *slog.Logger
}

func NewLogLedger(log *slog.Logger) *LogLedger {
	return &LogLedger{states: make(map[string]string), log: log}
}

func (l *LogLedger) AddProduct(_ context.Context, code, name, farmer, quantity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.states[code]; ok {
		return fmt.Errorf("product %s already anchored", code)
	}
	l.states[code] = StateCreated
	l.log.Info("ledger add product", "code", code, "name", name, "farmer", farmer, "quantity", quantity)
	return nil
}

func (l *LogLedger) ShipProduct(_ context.Context, code string) error {
	return l.advance(code, StateCreated, StateShipped)
}

func (l *LogLedger) ReceiveProduct(_ context.Context, code string) error {
	return l.advance(code, StateShipped, StateReceived)
}

func (l *LogLedger) State(code string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[code]
}

func (l *LogLedger) advance(code, from, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.states[code]
	if !ok {
		return fmt.Errorf("product %s not anchored", code)
	}
	if cur != from {
		return fmt.Errorf("product %s is %s, expected %s", code, cur, from)
	}
	l.states[code] = to
	l.log.Info("ledger state change", "code", code, "from", from, "to", to)
	return nil
}
