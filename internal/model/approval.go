package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type PayloadKind string

const (
	PayloadTransport PayloadKind = "transport"
	PayloadRetail    PayloadKind = "retail"
)

var ErrPayloadMismatch = errors.New("request payload does not match requester role")

// RequestPayload carries the custody record an approval would materialize.
// Exactly one of Transport or Retail is set, selected by Kind.
type RequestPayload struct {
	Kind      PayloadKind   `json:"kind"`
	Transport *TransportLog `json:"transport,omitempty"`
	Retail    *RetailLog    `json:"retail,omitempty"`
}

func TransportPayload(log TransportLog) RequestPayload {
	return RequestPayload{Kind: PayloadTransport, Transport: &log}
}

func RetailPayload(log RetailLog) RequestPayload {
	return RequestPayload{Kind: PayloadRetail, Retail: &log}
}

// Validate checks that the payload is well formed for a request raised by role.
func (p RequestPayload) Validate(role Role) error {
	switch p.Kind {
	case PayloadTransport:
		if role != RoleTransporter || p.Transport == nil || p.Retail != nil {
			return fmt.Errorf("%w: kind %s from %s", ErrPayloadMismatch, p.Kind, role)
		}
	case PayloadRetail:
		if role != RoleRetailer || p.Retail == nil || p.Transport != nil {
			return fmt.Errorf("%w: kind %s from %s", ErrPayloadMismatch, p.Kind, role)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrPayloadMismatch, p.Kind)
	}
	return nil
}

type ApprovalRequest struct {
	ID            uuid.UUID      `json:"id"`
	ProductID     uuid.UUID      `json:"product_id"`
	ProductName   string         `json:"product_name"`
	RequesterID   uuid.UUID      `json:"requester_id"`
	RequesterName string         `json:"requester_name"`
	RequesterRole Role           `json:"requester_role"`
	ApproverID    uuid.UUID      `json:"approver_id"`
	ApproverRole  Role           `json:"approver_role"`
	Status        ApprovalStatus `json:"status"`
	Payload       RequestPayload `json:"request_data"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Transition describes the product change an approved request commits.
type Transition struct {
	From          ProductStatus
	To            ProductStatus
	Awaiting      WorkflowState
	ApprovedEvent string
	RejectedEvent string
}

// TransitionFor returns the custody transition the request's payload drives.
func (r *ApprovalRequest) TransitionFor() (Transition, error) {
	if err := r.Payload.Validate(r.RequesterRole); err != nil {
		return Transition{}, err
	}
	switch r.Payload.Kind {
	case PayloadTransport:
		return Transition{
			From: StatusCreated, To: StatusInTransport,
			Awaiting:      WorkflowAwaitingTransportApproval,
			ApprovedEvent: EventTransportApproved, RejectedEvent: EventTransportRejected,
		}, nil
	case PayloadRetail:
		return Transition{
			From: StatusInTransport, To: StatusAtRetail,
			Awaiting:      WorkflowAwaitingRetailApproval,
			ApprovedEvent: EventRetailApproved, RejectedEvent: EventRetailRejected,
		}, nil
	}
	return Transition{}, fmt.Errorf("%w: unknown kind %q", ErrPayloadMismatch, r.Payload.Kind)
}

const (
	EventProductCreated     = "product.created"
	EventTransportRequested = "transport.requested"
	EventTransportApproved  = "transport.approved"
	EventTransportRejected  = "transport.rejected"
	EventRetailRequested    = "retail.requested"
	EventRetailApproved     = "retail.approved"
	EventRetailRejected     = "retail.rejected"
	EventProductSold        = "product.sold"
)

// CustodyEvent is published to the broker after a workflow change commits.
type CustodyEvent struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	ProductID   uuid.UUID  `json:"product_id"`
	ProductName string     `json:"product_name"`
	QRCode      string     `json:"qr_code"`
	ActorID     uuid.UUID  `json:"actor_id"`
	ActorName   string     `json:"actor_name"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	Quantity    string     `json:"quantity,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}
