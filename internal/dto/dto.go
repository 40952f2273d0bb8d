package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Name  string     `json:"name" binding:"required"`
	Email string     `json:"email" binding:"required,email"`
	Role  model.Role `json:"role" binding:"required"`
}

type LoginRequest struct {
	Email string     `json:"email" binding:"required,email"`
	Role  model.Role `json:"role" binding:"required"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	WalletID string     `json:"wallet_id"`
}

// --- Product ---

// Amounts arrive as strings so malformed numbers surface as validation errors
// instead of JSON decode failures.
type CreateProductRequest struct {
	Name     string `json:"product_name" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Price    string `json:"price" binding:"required"`
}

type CreateProductResponse struct {
	Product model.Product `json:"product"`
	QRCode  string        `json:"qr_code"`
}

// --- Workflow ---

type ScanRequest struct {
	Code string `json:"code" binding:"required"`
}

type ScanResponse struct {
	Product      model.Product       `json:"product"`
	TransportLog *model.TransportLog `json:"transport_log,omitempty"`
}

type TransportRequest struct {
	Code    string `json:"code" binding:"required"`
	Details string `json:"transport_details" binding:"required"`
	Cost    string `json:"transport_cost" binding:"required"`
}

type RetailRequest struct {
	Code     string `json:"code" binding:"required"`
	Price    string `json:"retail_price" binding:"required"`
	Location string `json:"location" binding:"required"`
}

type ApprovalListResponse struct {
	Requests []model.ApprovalRequest `json:"requests"`
	Total    int                     `json:"total"`
}
