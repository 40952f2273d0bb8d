package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/agrichain-api/internal/dto"
	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

const lookupCodePrefix = "AGRI-"

// Amounts are stored as NUMERIC(18, scale) in PostgreSQL; both stores accept
// the same inputs.
const (
	amountPrecision = 18
	moneyScale      = 2
	quantityScale   = 3
)

type ProductService struct {
	productRepo repository.ProductRepository
	notify      notifier
}

func NewProductService(productRepo repository.ProductRepository, publisher events.Publisher, m *metrics.Metrics, log *slog.Logger) *ProductService {
	return &ProductService{productRepo: productRepo, notify: notifier{publisher: publisher, metrics: m, log: log}}
}

func (s *ProductService) Create(ctx context.Context, farmer *model.User, req dto.CreateProductRequest) (*dto.CreateProductResponse, error) {
	if farmer.Role != model.RoleFarmer {
		return nil, fmt.Errorf("%w: only farmers can register products", ErrForbidden)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	quantity, err := parseAmount("quantity", req.Quantity, quantityScale)
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}
	price, err := parseAmount("price", req.Price, moneyScale)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	product := &model.Product{
		ID:            id,
		FarmerID:      farmer.ID,
		FarmerName:    farmer.Name,
		Name:          name,
		Quantity:      quantity,
		Price:         price,
		QRCode:        LookupCode(id),
		Status:        model.StatusCreated,
		WorkflowState: model.WorkflowIdle,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.notify.emit(ctx, model.EventProductCreated, product, farmer, nil, product.CreatedAt)
	return &dto.CreateProductResponse{Product: *product, QRCode: product.QRCode}, nil
}

func (s *ProductService) FindByCode(ctx context.Context, code string) (*model.Product, error) {
	return findByCode(ctx, s.productRepo, code)
}

func (s *ProductService) ListForFarmer(ctx context.Context, farmer *model.User) ([]model.Product, error) {
	if farmer.Role != model.RoleFarmer {
		return nil, fmt.Errorf("%w: only farmers own products", ErrForbidden)
	}
	products, err := s.productRepo.ListByFarmer(ctx, farmer.ID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return nonNil(products), nil
}

// LookupCode derives the short scannable code for a product id.
func LookupCode(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return lookupCodePrefix + strings.ToUpper(hex[:12])
}

// NormalizeCode prepares user input for an exact code match.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func findByCode(ctx context.Context, repo repository.ProductRepository, code string) (*model.Product, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, fmt.Errorf("%w: lookup code is required", ErrValidation)
	}
	product, err := repo.GetByQRCode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: no product with code %s", ErrNotFound, normalized)
	}
	return product, nil
}

func parseAmount(field, raw string, scale int32) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be a number", ErrValidation, field)
	}
	if v.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
	}
	if !v.Equal(v.Truncate(scale)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s allows at most %d decimal places", ErrValidation, field, scale)
	}
	if v.GreaterThanOrEqual(decimal.New(1, amountPrecision-scale)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is too large", ErrValidation, field)
	}
	return v, nil
}
