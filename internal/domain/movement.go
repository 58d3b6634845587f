package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type MovementKind string

const (
	MovementDeposit    MovementKind = "deposit"
	MovementWithdrawal MovementKind = "withdrawal"
)

// Movement is one signed, immutable monetary event of an account.
// Deposits are positive, withdrawals negative.
type Movement struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      MovementKind    `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewDeposit builds a deposit of a positive amount.
func NewDeposit(accountID int64, amount decimal.Decimal) *Movement {
	return &Movement{
		AccountID: accountID,
		Amount:    amount.Abs(),
		Kind:      MovementDeposit,
	}
}

// NewWithdrawal builds a withdrawal; amount is given as a positive value and
// stored negated.
func NewWithdrawal(accountID int64, amount decimal.Decimal) *Movement {
	return &Movement{
		AccountID: accountID,
		Amount:    amount.Abs().Neg(),
		Kind:      MovementWithdrawal,
	}
}

// Consistent reports whether the amount is non-zero and its sign agrees with
// the kind tag.
func (m *Movement) Consistent() bool {
	switch m.Kind {
	case MovementDeposit:
		return m.Amount.IsPositive()
	case MovementWithdrawal:
		return m.Amount.IsNegative()
	default:
		return false
	}
}

type MovementRepository interface {
	// InsertMovements appends movements and fills in their ids and timestamps.
	InsertMovements(ctx context.Context, movements ...*Movement) error
	// ListMovements returns an account's movements, newest first.
	ListMovements(ctx context.Context, accountID int64) ([]Movement, error)
	DeleteMovements(ctx context.Context, accountID int64) (int64, error)
}
