package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

type approvalRepo struct{ s *Store }

func (r *approvalRepo) Submit(_ context.Context, req *model.ApprovalRequest) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	at := now()
	return r.s.mutate(func(st *state) error {
		n := st.Products.UpdateWhere(
			func(p model.Product) bool {
				return p.ID == req.ProductID && p.Status == tr.From && p.WorkflowState == model.WorkflowIdle
			},
			func(p *model.Product) {
				p.WorkflowState = tr.Awaiting
				p.Version++
				p.UpdatedAt = at
			},
		)
		if n == 0 {
			return repository.ErrStale
		}
		req.Status = model.ApprovalPending
		req.CreatedAt = at
		req.UpdatedAt = at
		st.Approvals.Append(cloneRequest(*req))
		return nil
	})
}

func (r *approvalRepo) GetByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	req := findOne(r.s, func(st *state) (model.ApprovalRequest, bool) {
		return st.Approvals.FindBy(func(a model.ApprovalRequest) bool { return a.ID == id })
	})
	if req == nil {
		return nil, nil
	}
	c := cloneRequest(*req)
	return &c, nil
}

func (r *approvalRepo) ListPendingByApprover(_ context.Context, approverID uuid.UUID) ([]model.ApprovalRequest, error) {
	return r.filter(func(a model.ApprovalRequest) bool {
		return a.ApproverID == approverID && a.Status == model.ApprovalPending
	}), nil
}

func (r *approvalRepo) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]model.ApprovalRequest, error) {
	out := r.filter(func(a model.ApprovalRequest) bool { return a.RequesterID == requesterID })
	slices.Reverse(out)
	return out, nil
}

func (r *approvalRepo) filter(pred func(model.ApprovalRequest) bool) []model.ApprovalRequest {
	var out []model.ApprovalRequest
	r.s.read(func(st *state) {
		for _, a := range st.Approvals.Filter(pred) {
			out = append(out, cloneRequest(a))
		}
	})
	return out
}

func (r *approvalRepo) Approve(_ context.Context, req *model.ApprovalRequest, at time.Time) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}
	err = r.s.mutate(func(st *state) error {
		if err := closeRequest(st, req.ID, model.ApprovalApproved, at); err != nil {
			return err
		}
		n := st.Products.UpdateWhere(
			func(p model.Product) bool {
				return p.ID == req.ProductID && p.Status == tr.From && p.WorkflowState == tr.Awaiting
			},
			func(p *model.Product) {
				p.Status = tr.To
				p.WorkflowState = model.WorkflowIdle
				p.Version++
				p.UpdatedAt = at
			},
		)
		if n == 0 {
			return repository.ErrStale
		}
		switch req.Payload.Kind {
		case model.PayloadTransport:
			l := *req.Payload.Transport
			l.ProductID = req.ProductID
			l.UpdatedAt = at
			st.TransportLogs.Append(l)
		case model.PayloadRetail:
			l := *req.Payload.Retail
			l.ProductID = req.ProductID
			l.UpdatedAt = at
			st.RetailLogs.Append(l)
		}
		return nil
	})
	if err != nil {
		return err
	}
	req.Status = model.ApprovalApproved
	req.UpdatedAt = at
	return nil
}

func (r *approvalRepo) Reject(_ context.Context, req *model.ApprovalRequest, at time.Time) error {
	tr, err := req.TransitionFor()
	if err != nil {
		return err
	}
	err = r.s.mutate(func(st *state) error {
		if err := closeRequest(st, req.ID, model.ApprovalRejected, at); err != nil {
			return err
		}
		n := st.Products.UpdateWhere(
			func(p model.Product) bool {
				return p.ID == req.ProductID && p.Status == tr.From && p.WorkflowState == tr.Awaiting
			},
			func(p *model.Product) {
				p.WorkflowState = model.WorkflowIdle
				p.Version++
				p.UpdatedAt = at
			},
		)
		if n == 0 {
			return repository.ErrStale
		}
		return nil
	})
	if err != nil {
		return err
	}
	req.Status = model.ApprovalRejected
	req.UpdatedAt = at
	return nil
}

func closeRequest(st *state, id uuid.UUID, status model.ApprovalStatus, at time.Time) error {
	n := st.Approvals.UpdateWhere(
		func(a model.ApprovalRequest) bool { return a.ID == id && a.Status == model.ApprovalPending },
		func(a *model.ApprovalRequest) {
			a.Status = status
			a.UpdatedAt = at
		},
	)
	if n == 0 {
		return repository.ErrStale
	}
	return nil
}

// cloneRequest copies the payload so callers never share log pointers with the store.
func cloneRequest(a model.ApprovalRequest) model.ApprovalRequest {
	if a.Payload.Transport != nil {
		l := *a.Payload.Transport
		a.Payload.Transport = &l
	}
	if a.Payload.Retail != nil {
		l := *a.Payload.Retail
		a.Payload.Retail = &l
	}
	return a
}
