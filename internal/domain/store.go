package domain

import "context"

// Store is the unit of work shared by the ledger. Repositories obtained from
// the Store passed to WithTransaction's callback run inside that transaction;
// the whole callback commits or rolls back as one unit.
type Store interface {
	Accounts() AccountRepository
	Movements() MovementRepository
	WithTransaction(ctx context.Context, fn func(tx Store) error) error
}
