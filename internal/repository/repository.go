package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories bundles the five entity collections behind one back-end.
type Repositories struct {
	Users         UserRepository
	Products      ProductRepository
	TransportLogs TransportLogRepository
	RetailLogs    RetailLogRepository
	Approvals     ApprovalRepository
}

func NewPostgres(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:         NewUserRepository(pool),
		Products:      NewProductRepository(pool),
		TransportLogs: NewTransportLogRepository(pool),
		RetailLogs:    NewRetailLogRepository(pool),
		Approvals:     NewApprovalRepository(pool),
	}
}
