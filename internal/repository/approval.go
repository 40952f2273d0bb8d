package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/agrichain-api/internal/model"
)

// ApprovalRepository owns every write that spans more than one collection. Each
// method commits atomically or not at all.
type ApprovalRepository interface {
	// Submit stores a pending request and marks the product as awaiting approval.
	Submit(ctx context.Context, req *model.ApprovalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	ListPendingByApprover(ctx context.Context, approverID uuid.UUID) ([]model.ApprovalRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.ApprovalRequest, error)
	// Approve materializes the payload log, advances the product one stage and
	// marks the request approved.
	Approve(ctx context.Context, req *model.ApprovalRequest, at time.Time) error
	// Reject marks the request rejected and returns the product to idle.
	Reject(ctx context.Context, req *model.ApprovalRequest, at time.Time) error
}

type pgApprovalRepo struct{ pool *pgxpool.Pool }

func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &pgApprovalRepo{pool: pool}
}

const approvalColumns = `id, product_id, product_name, requester_id, requester_name, requester_role,
	approver_id, approver_role, status, request_data, created_at, updated_at`

func (r *pgApprovalRepo) Submit(ctx context.Context, req *model.ApprovalRequest) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("encode request data: %w", err)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE products SET workflow_state = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND status = $2 AND workflow_state = 'idle'`,
		req.ProductID, tr.From, tr.Awaiting,
	)
	if err != nil {
		return fmt.Errorf("mark product awaiting: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO approval_requests (`+approvalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		req.ID, req.ProductID, req.ProductName, req.RequesterID, req.RequesterName, req.RequesterRole,
		req.ApproverID, req.ApproverRole, model.ApprovalPending, payload,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	req.Status = model.ApprovalPending
	return tx.Commit(ctx)
}

func (r *pgApprovalRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	req, err := scanApproval(r.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	return req, nil
}

func (r *pgApprovalRepo) ListPendingByApprover(ctx context.Context, approverID uuid.UUID) ([]model.ApprovalRequest, error) {
	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE approver_id = $1 AND status = 'pending' ORDER BY seq`, approverID,
	)
}

func (r *pgApprovalRepo) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.ApprovalRequest, error) {
	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE requester_id = $1 ORDER BY seq DESC`, requesterID,
	)
}

func (r *pgApprovalRepo) list(ctx context.Context, query string, id uuid.UUID) ([]model.ApprovalRequest, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	defer rows.Close()

	var reqs []model.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval requests: %w", err)
	}
	return reqs, nil
}

func (r *pgApprovalRepo) Approve(ctx context.Context, req *model.ApprovalRequest, at time.Time) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := closeRequest(ctx, tx, req.ID, model.ApprovalApproved, at); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE products SET status = $3, workflow_state = 'idle', version = version + 1, updated_at = $5
		 WHERE id = $1 AND status = $2 AND workflow_state = $4`,
		req.ProductID, tr.From, tr.To, tr.Awaiting, at,
	)
	if err != nil {
		return fmt.Errorf("advance product status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}

	switch req.Payload.Kind {
	case model.PayloadTransport:
		l := req.Payload.Transport
		_, err = tx.Exec(ctx,
			`INSERT INTO transport_logs (`+transportLogColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, req.ProductID, l.TransporterID, l.TransporterName, l.Details, l.Cost, at,
		)
	case model.PayloadRetail:
		l := req.Payload.Retail
		_, err = tx.Exec(ctx,
			`INSERT INTO retail_logs (`+retailLogColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, req.ProductID, l.RetailerID, l.RetailerName, l.RetailPrice, l.Location, at,
		)
	}
	if err != nil {
		return fmt.Errorf("insert %s log: %w", req.Payload.Kind, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	req.Status = model.ApprovalApproved
	req.UpdatedAt = at
	return nil
}

func (r *pgApprovalRepo) Reject(ctx context.Context, req *model.ApprovalRequest, at time.Time) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := closeRequest(ctx, tx, req.ID, model.ApprovalRejected, at); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE products SET workflow_state = 'idle', version = version + 1, updated_at = $4
		 WHERE id = $1 AND status = $2 AND workflow_state = $3`,
		req.ProductID, tr.From, tr.Awaiting, at,
	)
	if err != nil {
		return fmt.Errorf("release product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	req.Status = model.ApprovalRejected
	req.UpdatedAt = at
	return nil
}

func closeRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.ApprovalStatus, at time.Time) error {
	ct, err := tx.Exec(ctx,
		`UPDATE approval_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func scanApproval(row pgx.Row) (*model.ApprovalRequest, error) {
	req := &model.ApprovalRequest{}
	var payload []byte
	err := row.Scan(
		&req.ID, &req.ProductID, &req.ProductName, &req.RequesterID, &req.RequesterName, &req.RequesterRole,
		&req.ApproverID, &req.ApproverRole, &req.Status, &payload, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &req.Payload); err != nil {
		return nil, fmt.Errorf("decode request data: %w", err)
	}
	return req, nil
}
