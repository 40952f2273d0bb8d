package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/agrichain-api/internal/model"
)

func createUser(t *testing.T, repo UserRepository, name, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: email, Role: role, WalletID: "0x" + uuid.NewString()[:8]}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func createProduct(t *testing.T, repo ProductRepository, farmer *model.User, code string) *model.Product {
	t.Helper()
	p := &model.Product{
		FarmerID: farmer.ID, FarmerName: farmer.Name, Name: "Rice",
		Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(50),
		QRCode: code, Status: model.StatusCreated, WorkflowState: model.WorkflowIdle,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestUserRepo_FindByEmailAndRoleReturnsOldest(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	first := createUser(t, repo, "First", "same@farm.in", model.RoleFarmer)
	createUser(t, repo, "Second", "same@farm.in", model.RoleFarmer)
	createUser(t, repo, "Other", "same@farm.in", model.RoleTransporter)

	found, err := repo.FindByEmailAndRole(ctx, "same@farm.in", model.RoleFarmer)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.FindByEmailAndRole(ctx, "same@farm.in", model.RoleRetailer)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProductRepo_CreateAndLookup(t *testing.T) {
	cleanupTable(t, allTables...)

	users := NewUserRepository(testPool)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	farmer := createUser(t, users, "Asha", "asha@farm.in", model.RoleFarmer)
	p := createProduct(t, repo, farmer, "AGRI-000000000001")
	assert.Equal(t, int64(0), p.Version)

	found, err := repo.GetByQRCode(ctx, "AGRI-000000000001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)
	assert.True(t, found.Price.Equal(decimal.NewFromInt(50)))

	list, err := repo.ListByFarmer(ctx, farmer.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.AdvanceStatus(ctx, p.ID, model.StatusAtRetail, model.StatusSold), ErrStale)
}

func TestApprovalRepo_ApproveAndReject(t *testing.T) {
	cleanupTable(t, allTables...)

	users := NewUserRepository(testPool)
	products := NewProductRepository(testPool)
	approvals := NewApprovalRepository(testPool)
	logs := NewTransportLogRepository(testPool)
	ctx := context.Background()

	farmer := createUser(t, users, "Asha", "asha@farm.in", model.RoleFarmer)
	transporter := createUser(t, users, "Ravi", "ravi@move.in", model.RoleTransporter)
	p := createProduct(t, products, farmer, "AGRI-000000000002")

	newRequest := func() *model.ApprovalRequest {
		return &model.ApprovalRequest{
			ProductID: p.ID, ProductName: p.Name,
			RequesterID: transporter.ID, RequesterName: transporter.Name, RequesterRole: model.RoleTransporter,
			ApproverID: farmer.ID, ApproverRole: model.RoleFarmer,
			Payload: model.TransportPayload(model.TransportLog{
				ID: uuid.New(), ProductID: p.ID, TransporterID: transporter.ID,
				TransporterName: transporter.Name, Details: "truck", Cost: decimal.NewFromInt(500),
			}),
		}
	}

	rejected := newRequest()
	require.NoError(t, approvals.Submit(ctx, rejected))
	assert.ErrorIs(t, approvals.Submit(ctx, newRequest()), ErrStale)
	require.NoError(t, approvals.Reject(ctx, rejected, time.Now()))

	log, err := logs.GetByProductID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, log)

	approved := newRequest()
	require.NoError(t, approvals.Submit(ctx, approved))
	require.NoError(t, approvals.Approve(ctx, approved, time.Now()))

	got, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransport, got.Status)
	assert.Equal(t, model.WorkflowIdle, got.WorkflowState)

	log, err = logs.GetByProductID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Cost.Equal(decimal.NewFromInt(500)))

	history, err := approvals.ListByRequester(ctx, transporter.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ApprovalApproved, history[0].Status)
	assert.Equal(t, model.ApprovalRejected, history[1].Status)

	pending, err := approvals.ListPendingByApprover(ctx, farmer.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
