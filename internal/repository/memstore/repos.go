package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

func now() time.Time { return time.Now().UTC() }

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now()
	return r.s.mutate(func(st *state) error {
		st.Users.Append(*user)
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return findOne(r.s, func(st *state) (model.User, bool) {
		return st.Users.FindBy(func(u model.User) bool { return u.ID == id })
	}), nil
}

func (r *userRepo) FindByEmailAndRole(_ context.Context, email string, role model.Role) (*model.User, error) {
	return findOne(r.s, func(st *state) (model.User, bool) {
		return st.Users.FindBy(func(u model.User) bool { return u.Email == email && u.Role == role })
	}), nil
}

type productRepo struct{ s *Store }

func (r *productRepo) Create(_ context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	p.Version = 0
	return r.s.mutate(func(st *state) error {
		st.Products.Append(*p)
		return nil
	})
}

func (r *productRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	return findOne(r.s, func(st *state) (model.Product, bool) {
		return st.Products.FindBy(func(p model.Product) bool { return p.ID == id })
	}), nil
}

func (r *productRepo) GetByQRCode(_ context.Context, code string) (*model.Product, error) {
	return findOne(r.s, func(st *state) (model.Product, bool) {
		return st.Products.FindBy(func(p model.Product) bool { return p.QRCode == code })
	}), nil
}

func (r *productRepo) ListByFarmer(_ context.Context, farmerID uuid.UUID) ([]model.Product, error) {
	var out []model.Product
	r.s.read(func(st *state) {
		out = st.Products.Filter(func(p model.Product) bool { return p.FarmerID == farmerID })
	})
	slices.Reverse(out)
	return out, nil
}

func (r *productRepo) AdvanceStatus(_ context.Context, id uuid.UUID, from, to model.ProductStatus) error {
	at := now()
	return r.s.mutate(func(st *state) error {
		n := st.Products.UpdateWhere(
			func(p model.Product) bool {
				return p.ID == id && p.Status == from && p.WorkflowState == model.WorkflowIdle
			},
			func(p *model.Product) {
				p.Status = to
				p.Version++
				p.UpdatedAt = at
			},
		)
		if n == 0 {
			return repository.ErrStale
		}
		return nil
	})
}

type transportLogRepo struct{ s *Store }

func (r *transportLogRepo) GetByProductID(_ context.Context, productID uuid.UUID) (*model.TransportLog, error) {
	return findOne(r.s, func(st *state) (model.TransportLog, bool) {
		return st.TransportLogs.FindBy(func(l model.TransportLog) bool { return l.ProductID == productID })
	}), nil
}

func (r *transportLogRepo) ListByTransporter(_ context.Context, transporterID uuid.UUID) ([]model.TransportLog, error) {
	var out []model.TransportLog
	r.s.read(func(st *state) {
		out = st.TransportLogs.Filter(func(l model.TransportLog) bool { return l.TransporterID == transporterID })
	})
	slices.Reverse(out)
	return out, nil
}

type retailLogRepo struct{ s *Store }

func (r *retailLogRepo) GetByProductID(_ context.Context, productID uuid.UUID) (*model.RetailLog, error) {
	return findOne(r.s, func(st *state) (model.RetailLog, bool) {
		return st.RetailLogs.FindBy(func(l model.RetailLog) bool { return l.ProductID == productID })
	}), nil
}

func (r *retailLogRepo) ListByRetailer(_ context.Context, retailerID uuid.UUID) ([]model.RetailLog, error) {
	var out []model.RetailLog
	r.s.read(func(st *state) {
		out = st.RetailLogs.Filter(func(l model.RetailLog) bool { return l.RetailerID == retailerID })
	})
	slices.Reverse(out)
	return out, nil
}

func findOne[T any](s *Store, find func(st *state) (T, bool)) *T {
	var (
		v  T
		ok bool
	)
	s.read(func(st *state) { v, ok = find(st) })
	if !ok {
		return nil
	}
	return &v
}
