package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/agrichain-api/internal/model"
)

// Custody logs are only written by ApprovalRepository.Approve.

type TransportLogRepository interface {
	GetByProductID(ctx context.Context, productID uuid.UUID) (*model.TransportLog, error)
	ListByTransporter(ctx context.Context, transporterID uuid.UUID) ([]model.TransportLog, error)
}

type RetailLogRepository interface {
	GetByProductID(ctx context.Context, productID uuid.UUID) (*model.RetailLog, error)
	ListByRetailer(ctx context.Context, retailerID uuid.UUID) ([]model.RetailLog, error)
}

type pgTransportLogRepo struct{ pool *pgxpool.Pool }

func NewTransportLogRepository(pool *pgxpool.Pool) TransportLogRepository {
	return &pgTransportLogRepo{pool: pool}
}

const transportLogColumns = `id, product_id, transporter_id, transporter_name, details, cost, updated_at`

func (r *pgTransportLogRepo) GetByProductID(ctx context.Context, productID uuid.UUID) (*model.TransportLog, error) {
	l := &model.TransportLog{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+transportLogColumns+` FROM transport_logs WHERE product_id = $1 ORDER BY seq LIMIT 1`,
		productID,
	).Scan(&l.ID, &l.ProductID, &l.TransporterID, &l.TransporterName, &l.Details, &l.Cost, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transport log: %w", err)
	}
	return l, nil
}

func (r *pgTransportLogRepo) ListByTransporter(ctx context.Context, transporterID uuid.UUID) ([]model.TransportLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transportLogColumns+` FROM transport_logs WHERE transporter_id = $1 ORDER BY seq DESC`,
		transporterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transport logs: %w", err)
	}
	defer rows.Close()

	var logs []model.TransportLog
	for rows.Next() {
		var l model.TransportLog
		if err := rows.Scan(&l.ID, &l.ProductID, &l.TransporterID, &l.TransporterName, &l.Details, &l.Cost, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transport log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type pgRetailLogRepo struct{ pool *pgxpool.Pool }

func NewRetailLogRepository(pool *pgxpool.Pool) RetailLogRepository {
	return &pgRetailLogRepo{pool: pool}
}

const retailLogColumns = `id, product_id, retailer_id, retailer_name, retail_price, location, updated_at`

func (r *pgRetailLogRepo) GetByProductID(ctx context.Context, productID uuid.UUID) (*model.RetailLog, error) {
	l := &model.RetailLog{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+retailLogColumns+` FROM retail_logs WHERE product_id = $1 ORDER BY seq LIMIT 1`,
		productID,
	).Scan(&l.ID, &l.ProductID, &l.RetailerID, &l.RetailerName, &l.RetailPrice, &l.Location, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get retail log: %w", err)
	}
	return l, nil
}

func (r *pgRetailLogRepo) ListByRetailer(ctx context.Context, retailerID uuid.UUID) ([]model.RetailLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+retailLogColumns+` FROM retail_logs WHERE retailer_id = $1 ORDER BY seq DESC`,
		retailerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list retail logs: %w", err)
	}
	defer rows.Close()

	var logs []model.RetailLog
	for rows.Next() {
		var l model.RetailLog
		if err := rows.Scan(&l.ID, &l.ProductID, &l.RetailerID, &l.RetailerName, &l.RetailPrice, &l.Location, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan retail log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
