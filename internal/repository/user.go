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

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// FindByEmailAndRole returns the oldest user registered with the pair.
	FindByEmailAndRole(ctx context.Context, email string, role model.Role) (*model.User, error)
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `INSERT INTO users (id, name, email, role, wallet_id, created_at)
			  VALUES ($1, $2, $3, $4, $5, NOW())
			  RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.Role, user.WalletID,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT id, name, email, role, wallet_id, created_at FROM users WHERE id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) FindByEmailAndRole(ctx context.Context, email string, role model.Role) (*model.User, error) {
	query := `SELECT id, name, email, role, wallet_id, created_at
			  FROM users WHERE email = $1 AND role = $2
			  ORDER BY seq LIMIT 1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, email, role))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email and role: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.WalletID, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}
