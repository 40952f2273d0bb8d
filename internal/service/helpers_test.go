package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flicky/agrichain-api/internal/dto"
	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
	"github.com/flicky/agrichain-api/internal/repository/memstore"
	"github.com/flicky/agrichain-api/internal/session"
)

type testEnv struct {
	repos    repository.Repositories
	events   *events.Recorder
	identity *IdentityService
	products *ProductService
	journeys *JourneyService
	workflow *WorkflowService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return buildTestEnv(nil, session.NewMemoryStore(), nil)
}

func buildTestEnv(redisClient *redis.Client, sessions session.Store, m *metrics.Metrics) *testEnv {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := memstore.New().Repositories()
	rec := &events.Recorder{}
	journeys := NewJourneyService(repos, redisClient, time.Minute, m, log)
	return &testEnv{
		repos:    repos,
		events:   rec,
		identity: NewIdentityService(repos.Users, sessions, "test-secret", time.Hour),
		products: NewProductService(repos.Products, rec, m, log),
		journeys: journeys,
		workflow: NewWorkflowService(repos, journeys, rec, m, log),
	}
}

func (e *testEnv) register(t *testing.T, name, email string, role model.Role) *model.User {
	t.Helper()
	resp, err := e.identity.Register(context.Background(), dto.RegisterRequest{Name: name, Email: email, Role: role})
	require.NoError(t, err)
	user, err := e.repos.Users.GetByID(context.Background(), resp.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func (e *testEnv) createProduct(t *testing.T, farmer *model.User) *model.Product {
	t.Helper()
	resp, err := e.products.Create(context.Background(), farmer, dto.CreateProductRequest{
		Name: "Rice", Quantity: "100", Price: "50",
	})
	require.NoError(t, err)
	return &resp.Product
}

func (e *testEnv) product(t *testing.T, p *model.Product) *model.Product {
	t.Helper()
	got, err := e.repos.Products.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}
