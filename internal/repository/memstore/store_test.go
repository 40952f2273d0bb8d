package memstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

func TestCollection_FindByReturnsFirstMatch(t *testing.T) {
	var c Collection[model.User]
	assert.Empty(t, c.All())
	assert.NotNil(t, c.All())

	first := model.User{ID: uuid.New(), Email: "a@x.io", Role: model.RoleFarmer, Name: "first"}
	second := model.User{ID: uuid.New(), Email: "a@x.io", Role: model.RoleFarmer, Name: "second"}
	c.Append(first)
	c.Append(second)

	found, ok := c.FindBy(func(u model.User) bool { return u.Email == "a@x.io" })
	require.True(t, ok)
	assert.Equal(t, "first", found.Name)

	_, ok = c.FindBy(func(u model.User) bool { return u.Email == "b@x.io" })
	assert.False(t, ok)
}

func TestCollection_UpdateWhere(t *testing.T) {
	var c Collection[model.Product]
	c.Append(model.Product{Name: "Rice", Status: model.StatusCreated})
	c.Append(model.Product{Name: "Wheat", Status: model.StatusCreated})

	n := c.UpdateWhere(
		func(p model.Product) bool { return p.Name == "Wheat" },
		func(p *model.Product) { p.Status = model.StatusInTransport },
	)
	assert.Equal(t, 1, n)

	all := c.All()
	assert.Equal(t, model.StatusCreated, all[0].Status)
	assert.Equal(t, model.StatusInTransport, all[1].Status)
}

func seedProduct(t *testing.T, repos repository.Repositories) (*model.User, *model.Product) {
	t.Helper()
	ctx := context.Background()
	farmer := &model.User{Name: "Asha", Email: "asha@farm.in", Role: model.RoleFarmer}
	require.NoError(t, repos.Users.Create(ctx, farmer))
	p := &model.Product{
		FarmerID: farmer.ID, FarmerName: farmer.Name, Name: "Rice",
		Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(50),
		QRCode: "AGRI-TEST", Status: model.StatusCreated, WorkflowState: model.WorkflowIdle,
	}
	require.NoError(t, repos.Products.Create(ctx, p))
	return farmer, p
}

func transportRequest(p *model.Product, farmer *model.User) *model.ApprovalRequest {
	transporterID := uuid.New()
	return &model.ApprovalRequest{
		ProductID: p.ID, ProductName: p.Name,
		RequesterID: transporterID, RequesterName: "Ravi", RequesterRole: model.RoleTransporter,
		ApproverID: farmer.ID, ApproverRole: model.RoleFarmer,
		Payload: model.TransportPayload(model.TransportLog{
			ID: uuid.New(), ProductID: p.ID, TransporterID: transporterID, TransporterName: "Ravi",
			Details: "truck KA-01", Cost: decimal.NewFromInt(500),
		}),
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "agrichain.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	farmer, p := seedProduct(t, s.Repositories())
	req := transportRequest(p, farmer)
	require.NoError(t, s.Repositories().Approvals.Submit(ctx, req))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	repos := reopened.Repositories()

	found, err := repos.Products.GetByQRCode(ctx, "AGRI-TEST")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.WorkflowAwaitingTransportApproval, found.WorkflowState)
	assert.True(t, found.Quantity.Equal(decimal.NewFromInt(100)))

	pending, err := repos.Approvals.ListPendingByApprover(ctx, farmer.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.PayloadTransport, pending[0].Payload.Kind)
	require.NotNil(t, pending[0].Payload.Transport)
	assert.Equal(t, "truck KA-01", pending[0].Payload.Transport.Details)
}

func TestApprovalRepo_ApproveIsAtomic(t *testing.T) {
	s := New()
	repos := s.Repositories()
	ctx := context.Background()

	farmer, p := seedProduct(t, repos)
	req := transportRequest(p, farmer)
	require.NoError(t, repos.Approvals.Submit(ctx, req))

	// A concurrent writer resets the product behind the approver's back.
	require.NoError(t, s.mutate(func(st *state) error {
		st.Products.UpdateWhere(
			func(x model.Product) bool { return x.ID == p.ID },
			func(x *model.Product) { x.WorkflowState = model.WorkflowIdle },
		)
		return nil
	}))

	err := repos.Approvals.Approve(ctx, req, time.Now())
	assert.ErrorIs(t, err, repository.ErrStale)

	stored, err := repos.Approvals.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, stored.Status)

	log, err := repos.TransportLogs.GetByProductID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestApprovalRepo_ApproveMaterializesLog(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()

	farmer, p := seedProduct(t, repos)
	req := transportRequest(p, farmer)
	require.NoError(t, repos.Approvals.Submit(ctx, req))
	require.NoError(t, repos.Approvals.Approve(ctx, req, time.Now()))

	product, _ := repos.Products.GetByID(ctx, p.ID)
	assert.Equal(t, model.StatusInTransport, product.Status)
	assert.Equal(t, model.WorkflowIdle, product.WorkflowState)
	assert.Equal(t, int64(2), product.Version)

	log, _ := repos.TransportLogs.GetByProductID(ctx, p.ID)
	require.NotNil(t, log)
	assert.True(t, log.Cost.Equal(decimal.NewFromInt(500)))

	// Approving twice is refused; the request is no longer pending.
	assert.ErrorIs(t, repos.Approvals.Approve(ctx, req, time.Now()), repository.ErrStale)
}

func TestApprovalRepo_SubmitRequiresIdleProduct(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()

	farmer, p := seedProduct(t, repos)
	require.NoError(t, repos.Approvals.Submit(ctx, transportRequest(p, farmer)))
	assert.ErrorIs(t, repos.Approvals.Submit(ctx, transportRequest(p, farmer)), repository.ErrStale)

	history, _ := repos.Approvals.ListPendingByApprover(ctx, farmer.ID)
	assert.Len(t, history, 1)
}

func TestProductRepo_AdvanceStatusGuardsStage(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	_, p := seedProduct(t, repos)

	assert.ErrorIs(t, repos.Products.AdvanceStatus(ctx, p.ID, model.StatusAtRetail, model.StatusSold), repository.ErrStale)
	require.NoError(t, repos.Products.AdvanceStatus(ctx, p.ID, model.StatusCreated, model.StatusInTransport))

	got, _ := repos.Products.GetByID(ctx, p.ID)
	assert.Equal(t, model.StatusInTransport, got.Status)
}
