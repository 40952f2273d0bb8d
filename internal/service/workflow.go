package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/dto"
	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

// WorkflowService drives products through the custody handshake: a requester
// scans a code and submits a record, the designated approver accepts or rejects
// it, and only an accepted request moves the product forward.
type WorkflowService struct {
	repos    repository.Repositories
	journeys *JourneyService
	notify   notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewWorkflowService(
	repos repository.Repositories,
	journeys *JourneyService,
	publisher events.Publisher,
	m *metrics.Metrics,
	log *slog.Logger,
) *WorkflowService {
	return &WorkflowService{
		repos:    repos,
		journeys: journeys,
		notify:   notifier{publisher: publisher, metrics: m, log: log},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scan checks that actor may submit against the product behind code, without
// changing anything.
func (s *WorkflowService) Scan(ctx context.Context, actor *model.User, code string) (*dto.ScanResponse, error) {
	product, tlog, err := s.guard(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	return &dto.ScanResponse{Product: *product, TransportLog: tlog}, nil
}

// guard resolves the product and enforces the stage rules for the actor's role.
// Retailers also get the product's transport log, whose transporter becomes the
// approver of the retail request.
func (s *WorkflowService) guard(ctx context.Context, actor *model.User, code string) (*model.Product, *model.TransportLog, error) {
	var want model.ProductStatus
	switch actor.Role {
	case model.RoleTransporter:
		want = model.StatusCreated
	case model.RoleRetailer:
		want = model.StatusInTransport
	default:
		return nil, nil, fmt.Errorf("%w: %s cannot take custody", ErrForbidden, actor.Role)
	}

	product, err := findByCode(ctx, s.repos.Products, code)
	if err != nil {
		return nil, nil, err
	}
	if product.Status != want {
		return nil, nil, fmt.Errorf("%w: product %s is %s, %s needs %s",
			ErrInvalidTransition, product.QRCode, product.Status, actor.Role, want)
	}
	if product.WorkflowState != model.WorkflowIdle {
		return nil, nil, fmt.Errorf("%w: product %s is %s", ErrInvalidTransition, product.QRCode, product.WorkflowState)
	}
	if actor.Role != model.RoleRetailer {
		return product, nil, nil
	}

	tlog, err := s.repos.TransportLogs.GetByProductID(ctx, product.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get transport log: %w", err)
	}
	if tlog == nil {
		return nil, nil, fmt.Errorf("%w: product %s has no transport record", ErrInvalidTransition, product.QRCode)
	}
	return product, tlog, nil
}

func (s *WorkflowService) RequestTransport(ctx context.Context, actor *model.User, req dto.TransportRequest) (*model.ApprovalRequest, error) {
	if actor.Role != model.RoleTransporter {
		return nil, fmt.Errorf("%w: only transporters can request transport", ErrForbidden)
	}
	details := strings.TrimSpace(req.Details)
	if details == "" {
		return nil, fmt.Errorf("%w: transport details are required", ErrValidation)
	}
	cost, err := parseAmount("transport cost", req.Cost, moneyScale)
	if err != nil {
		return nil, err
	}
	product, _, err := s.guard(ctx, actor, req.Code)
	if err != nil {
		return nil, err
	}

	request := &model.ApprovalRequest{
		ProductID:     product.ID,
		ProductName:   product.Name,
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
		RequesterRole: actor.Role,
		ApproverID:    product.FarmerID,
		ApproverRole:  model.RoleFarmer,
		Payload: model.TransportPayload(model.TransportLog{
			ID:              uuid.New(),
			ProductID:       product.ID,
			TransporterID:   actor.ID,
			TransporterName: actor.Name,
			Details:         details,
			Cost:            cost,
		}),
	}
	return s.submit(ctx, actor, product, request, model.EventTransportRequested)
}

func (s *WorkflowService) RequestRetail(ctx context.Context, actor *model.User, req dto.RetailRequest) (*model.ApprovalRequest, error) {
	if actor.Role != model.RoleRetailer {
		return nil, fmt.Errorf("%w: only retailers can request a retail listing", ErrForbidden)
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrValidation)
	}
	price, err := parseAmount("retail price", req.Price, moneyScale)
	if err != nil {
		return nil, err
	}
	product, tlog, err := s.guard(ctx, actor, req.Code)
	if err != nil {
		return nil, err
	}

	request := &model.ApprovalRequest{
		ProductID:     product.ID,
		ProductName:   product.Name,
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
		RequesterRole: actor.Role,
		ApproverID:    tlog.TransporterID,
		ApproverRole:  model.RoleTransporter,
		Payload: model.RetailPayload(model.RetailLog{
			ID:           uuid.New(),
			ProductID:    product.ID,
			RetailerID:   actor.ID,
			RetailerName: actor.Name,
			RetailPrice:  price,
			Location:     location,
		}),
	}
	return s.submit(ctx, actor, product, request, model.EventRetailRequested)
}

func (s *WorkflowService) submit(ctx context.Context, actor *model.User, product *model.Product, request *model.ApprovalRequest, eventType string) (*model.ApprovalRequest, error) {
	if err := s.repos.Approvals.Submit(ctx, request); err != nil {
		return nil, storeError("submit request", err)
	}
	s.log.Info("approval requested",
		"request_id", request.ID, "product_id", product.ID,
		"requester_id", actor.ID, "approver_id", request.ApproverID)
	s.committed(ctx, eventType, product, actor, request.ID, request.CreatedAt)
	return request, nil
}

// Approve commits the request's record and advances the product one stage.
func (s *WorkflowService) Approve(ctx context.Context, actor *model.User, requestID uuid.UUID) (*model.ApprovalRequest, error) {
	request, tr, product, err := s.pendingRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.repos.Approvals.Approve(ctx, request, at); err != nil {
		return nil, storeError("approve request", err)
	}
	s.log.Info("approval granted", "request_id", request.ID, "product_id", product.ID, "status", tr.To)
	s.committed(ctx, tr.ApprovedEvent, product, actor, request.ID, at)
	return request, nil
}

// Reject closes the request and leaves the product's stage unchanged.
func (s *WorkflowService) Reject(ctx context.Context, actor *model.User, requestID uuid.UUID) (*model.ApprovalRequest, error) {
	request, tr, product, err := s.pendingRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.repos.Approvals.Reject(ctx, request, at); err != nil {
		return nil, storeError("reject request", err)
	}
	s.log.Info("approval rejected", "request_id", request.ID, "product_id", product.ID)
	s.committed(ctx, tr.RejectedEvent, product, actor, request.ID, at)
	return request, nil
}

func (s *WorkflowService) pendingRequest(ctx context.Context, actor *model.User, requestID uuid.UUID) (*model.ApprovalRequest, model.Transition, *model.Product, error) {
	request, err := s.repos.Approvals.GetByID(ctx, requestID)
	if err != nil {
		return nil, model.Transition{}, nil, fmt.Errorf("get request: %w", err)
	}
	if request == nil {
		return nil, model.Transition{}, nil, fmt.Errorf("%w: approval request %s", ErrNotFound, requestID)
	}
	if request.ApproverID != actor.ID {
		return nil, model.Transition{}, nil, fmt.Errorf("%w: request %s is not addressed to you", ErrForbidden, requestID)
	}
	if request.Status != model.ApprovalPending {
		return nil, model.Transition{}, nil, fmt.Errorf("%w: request %s is already %s", ErrInvalidTransition, requestID, request.Status)
	}
	tr, err := request.TransitionFor()
	if err != nil {
		return nil, model.Transition{}, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	product, err := s.repos.Products.GetByID(ctx, request.ProductID)
	if err != nil {
		return nil, model.Transition{}, nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, model.Transition{}, nil, fmt.Errorf("%w: product %s", ErrNotFound, request.ProductID)
	}
	return request, tr, product, nil
}

// PendingFor lists requests waiting on actor, oldest first.
func (s *WorkflowService) PendingFor(ctx context.Context, actor *model.User) ([]model.ApprovalRequest, error) {
	requests, err := s.repos.Approvals.ListPendingByApprover(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return nonNil(requests), nil
}

// HistoryFor lists every request actor raised, newest first.
func (s *WorkflowService) HistoryFor(ctx context.Context, actor *model.User) ([]model.ApprovalRequest, error) {
	requests, err := s.repos.Approvals.ListByRequester(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return nonNil(requests), nil
}

// RecordSale marks a product on the shelf as sold. Only the retailer of record may do so.
func (s *WorkflowService) RecordSale(ctx context.Context, actor *model.User, productID uuid.UUID) (*model.Product, error) {
	if actor.Role != model.RoleRetailer {
		return nil, fmt.Errorf("%w: only retailers record sales", ErrForbidden)
	}
	product, err := s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if product.Status != model.StatusAtRetail {
		return nil, fmt.Errorf("%w: product %s is %s", ErrInvalidTransition, product.QRCode, product.Status)
	}
	rlog, err := s.repos.RetailLogs.GetByProductID(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("get retail log: %w", err)
	}
	if rlog == nil || rlog.RetailerID != actor.ID {
		return nil, fmt.Errorf("%w: product %s is not listed by you", ErrForbidden, product.QRCode)
	}

	if err := s.repos.Products.AdvanceStatus(ctx, product.ID, model.StatusAtRetail, model.StatusSold); err != nil {
		return nil, storeError("record sale", err)
	}
	product, err = s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("reload product: %w", err)
	}
	s.log.Info("product sold", "product_id", product.ID, "retailer_id", actor.ID)
	s.committed(ctx, model.EventProductSold, product, actor, uuid.Nil, product.UpdatedAt)
	return product, nil
}

func (s *WorkflowService) TransportsFor(ctx context.Context, actor *model.User) ([]model.TransportLog, error) {
	if actor.Role != model.RoleTransporter {
		return nil, fmt.Errorf("%w: only transporters have transports", ErrForbidden)
	}
	logs, err := s.repos.TransportLogs.ListByTransporter(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list transports: %w", err)
	}
	return nonNil(logs), nil
}

func (s *WorkflowService) RetailsFor(ctx context.Context, actor *model.User) ([]model.RetailLog, error) {
	if actor.Role != model.RoleRetailer {
		return nil, fmt.Errorf("%w: only retailers have listings", ErrForbidden)
	}
	logs, err := s.repos.RetailLogs.ListByRetailer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list retail listings: %w", err)
	}
	return nonNil(logs), nil
}

func (s *WorkflowService) committed(ctx context.Context, eventType string, product *model.Product, actor *model.User, requestID uuid.UUID, at time.Time) {
	s.journeys.Invalidate(ctx, product.QRCode)
	var rid *uuid.UUID
	if requestID != uuid.Nil {
		rid = &requestID
	}
	s.notify.emit(ctx, eventType, product, actor, rid, at)
}

// storeError maps a lost optimistic write to an invalid transition.
func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrStale) {
		return fmt.Errorf("%w: product changed concurrently", ErrInvalidTransition)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
