package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/agrichain-api/internal/dto"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
	"github.com/flicky/agrichain-api/internal/session"
)

type redisEnv struct {
	*testEnv
	mr       *miniredis.Miniredis
	registry *prometheus.Registry
}

func newRedisEnv(t *testing.T) *redisEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := prometheus.NewRegistry()
	env := buildTestEnv(client, session.NewRedisStore(client), metrics.New(registry))
	return &redisEnv{testEnv: env, mr: mr, registry: registry}
}

func (e *redisEnv) lookups(t *testing.T, result string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "agrichain_journey_lookups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// readHook runs once, right after the wrapped repository has read a product by code.
type readHook struct {
	repository.ProductRepository
	afterRead func()
}

func (h *readHook) GetByQRCode(ctx context.Context, code string) (*model.Product, error) {
	p, err := h.ProductRepository.GetByQRCode(ctx, code)
	if f := h.afterRead; f != nil {
		h.afterRead = nil
		f()
	}
	return p, err
}

func TestJourneyCache_MissThenHit(t *testing.T) {
	env := newRedisEnv(t)
	farmer := env.register(t, "Asha", "asha@farm.in", model.RoleFarmer)
	p := env.createProduct(t, farmer)
	ctx := context.Background()

	first, err := env.journeys.Lookup(ctx, p.QRCode)
	require.NoError(t, err)
	assert.True(t, env.mr.Exists(journeyCachePrefix+p.QRCode))

	second, err := env.journeys.Lookup(ctx, " "+p.QRCode+" ")
	require.NoError(t, err)
	assert.Equal(t, first.Product.ID, second.Product.ID)
	assert.Equal(t, model.StatusCreated, second.Product.Status)

	assert.Equal(t, 1.0, env.lookups(t, metrics.LookupMiss))
	assert.Equal(t, 1.0, env.lookups(t, metrics.LookupHit))

	_, err = env.journeys.Lookup(ctx, "AGRI-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, env.lookups(t, metrics.LookupNotFound))
}

func TestJourneyCache_InvalidatedByApproval(t *testing.T) {
	env := newRedisEnv(t)
	c := newCast(t, env.testEnv)
	p := env.createProduct(t, c.farmer)
	ctx := context.Background()

	treq, err := env.workflow.RequestTransport(ctx, c.transporter, dto.TransportRequest{
		Code: p.QRCode, Details: "truck KA-01", Cost: "500",
	})
	require.NoError(t, err)

	before, err := env.journeys.Lookup(ctx, p.QRCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, before.Product.Status)
	assert.Nil(t, before.TransportLog)

	_, err = env.workflow.Approve(ctx, c.farmer, treq.ID)
	require.NoError(t, err)
	assert.False(t, env.mr.Exists(journeyCachePrefix+p.QRCode))

	after, err := env.journeys.Lookup(ctx, p.QRCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransport, after.Product.Status)
	require.NotNil(t, after.TransportLog)
	assert.Equal(t, c.transporter.ID, after.TransportLog.TransporterID)
}

func TestJourneyCache_CommitDuringLookupIsNotCached(t *testing.T) {
	env := newRedisEnv(t)
	c := newCast(t, env.testEnv)
	p := env.createProduct(t, c.farmer)
	ctx := context.Background()

	treq, err := env.workflow.RequestTransport(ctx, c.transporter, dto.TransportRequest{
		Code: p.QRCode, Details: "truck KA-01", Cost: "500",
	})
	require.NoError(t, err)

	hook := &readHook{ProductRepository: env.repos.Products}
	hook.afterRead = func() {
		_, err := env.workflow.Approve(ctx, c.farmer, treq.ID)
		require.NoError(t, err)
	}
	repos := env.repos
	repos.Products = hook
	env.journeys.repos = repos

	racing, err := env.journeys.Lookup(ctx, p.QRCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, racing.Product.Status)
	assert.False(t, env.mr.Exists(journeyCachePrefix+p.QRCode))

	fresh, err := env.journeys.Lookup(ctx, p.QRCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransport, fresh.Product.Status)
	assert.Equal(t, model.StatusInTransport, env.product(t, p).Status)
}

func TestIdentityService_LogoutRevokesRedisSession(t *testing.T) {
	env := newRedisEnv(t)
	ctx := context.Background()

	resp, err := env.identity.Register(ctx, dto.RegisterRequest{Name: "Asha", Email: "asha@farm.in", Role: model.RoleFarmer})
	require.NoError(t, err)
	user, err := env.identity.CurrentUser(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	require.NoError(t, env.identity.Logout(ctx, resp.Token))
	require.NoError(t, env.identity.Logout(ctx, resp.Token))
	_, err = env.identity.CurrentUser(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
