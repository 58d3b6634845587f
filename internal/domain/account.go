package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Account is an account holder. It carries no balance: the balance is always
// derived from the account's movements.
type Account struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	Owner        string          `json:"owner"`
	PINHash      string          `json:"-"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	// LockAccounts takes row locks on every id in ascending id order and
	// fails with ErrAccountNotFound if any of them does not exist.
	LockAccounts(ctx context.Context, ids ...int64) error
	DeleteAccount(ctx context.Context, id int64) error
}
