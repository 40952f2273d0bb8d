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

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetByQRCode(ctx context.Context, code string) (*model.Product, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]model.Product, error)
	// AdvanceStatus moves an idle product from one stage to the next. It returns
	// ErrStale when the product is not idle at stage from.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to model.ProductStatus) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

const productColumns = `id, farmer_id, farmer_name, name, quantity, price, qr_code, status,
	workflow_state, version, created_at, updated_at`

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	query := `INSERT INTO products (id, farmer_id, farmer_name, name, quantity, price, qr_code,
				status, workflow_state, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NOW(), NOW())
			  RETURNING version, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.FarmerID, product.FarmerName, product.Name, product.Quantity,
		product.Price, product.QRCode, product.Status, product.WorkflowState,
	).Scan(&product.Version, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) GetByQRCode(ctx context.Context, code string) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE qr_code = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by code: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE farmer_id = $1 ORDER BY seq DESC`, farmerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *pgProductRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to model.ProductStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE products SET status = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND status = $2 AND workflow_state = 'idle'`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(
		&p.ID, &p.FarmerID, &p.FarmerName, &p.Name, &p.Quantity, &p.Price, &p.QRCode, &p.Status,
		&p.WorkflowState, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
