package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLedger_Ordering(t *testing.T) {
	l := NewLogLedger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	assert.Error(t, l.ShipProduct(ctx, "AGRI-1"))

	require.NoError(t, l.AddProduct(ctx, "AGRI-1", "Rice", "Asha", "100"))
	assert.Error(t, l.AddProduct(ctx, "AGRI-1", "Rice", "Asha", "100"))
	assert.Error(t, l.ReceiveProduct(ctx, "AGRI-1"))

	require.NoError(t, l.ShipProduct(ctx, "AGRI-1"))
	require.NoError(t, l.ReceiveProduct(ctx, "AGRI-1"))
	assert.Equal(t, StateReceived, l.State("AGRI-1"))
}
