package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleFarmer      Role = "farmer"
	RoleTransporter Role = "transporter"
	RoleRetailer    Role = "retailer"
	RoleConsumer    Role = "consumer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleTransporter, RoleRetailer, RoleConsumer:
		return true
	}
	return false
}

// ProductStatus is the custody stage of a product. Stages only move forward.
type ProductStatus string

const (
	StatusCreated     ProductStatus = "created"
	StatusInTransport ProductStatus = "in_transport"
	StatusAtRetail    ProductStatus = "at_retail"
	StatusSold        ProductStatus = "sold"
)

var statusOrder = []ProductStatus{StatusCreated, StatusInTransport, StatusAtRetail, StatusSold}

// Rank returns the position of the stage in the custody chain, or -1 for unknown values.
func (s ProductStatus) Rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s. Sold has no successor.
func (s ProductStatus) Next() (ProductStatus, bool) {
	r := s.Rank()
	if r < 0 || r == len(statusOrder)-1 {
		return "", false
	}
	return statusOrder[r+1], true
}

// WorkflowState records whether a product is waiting on an approval handshake.
type WorkflowState string

const (
	WorkflowIdle                      WorkflowState = "idle"
	WorkflowAwaitingTransportApproval WorkflowState = "awaiting_transport_approval"
	WorkflowAwaitingRetailApproval    WorkflowState = "awaiting_retail_approval"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	WalletID  string    `json:"wallet_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID            uuid.UUID       `json:"id"`
	FarmerID      uuid.UUID       `json:"farmer_id"`
	FarmerName    string          `json:"farmer_name"`
	Name          string          `json:"product_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	QRCode        string          `json:"qr_code"`
	Status        ProductStatus   `json:"status"`
	WorkflowState WorkflowState   `json:"workflow_state"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type TransportLog struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	TransporterID   uuid.UUID       `json:"transporter_id"`
	TransporterName string          `json:"transporter_name"`
	Details         string          `json:"transport_details"`
	Cost            decimal.Decimal `json:"transport_cost"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type RetailLog struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	RetailerID   uuid.UUID       `json:"retailer_id"`
	RetailerName string          `json:"retailer_name"`
	RetailPrice  decimal.Decimal `json:"retail_price"`
	Location     string          `json:"location"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductJourney is the consumer-facing view of a product and its custody records.
type ProductJourney struct {
	Product      Product       `json:"product"`
	TransportLog *TransportLog `json:"transport_log,omitempty"`
	RetailLog    *RetailLog    `json:"retail_log,omitempty"`
}

type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
