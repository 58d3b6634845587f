// Package seed loads the Bankist demo accounts.
package seed

import (
	"context"
	stderrors "errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/service"
)

type Fixture struct {
	Owner        string
	Username     string
	PIN          string
	InterestRate decimal.Decimal
	// Movements are listed oldest first.
	Movements []decimal.Decimal
}

func amounts(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

// Fixtures returns the four demo accounts.
func Fixtures() []Fixture {
	return []Fixture{
		{
			Owner:        "Jonas Schmedtmann",
			Username:     "js",
			PIN:          "1111",
			InterestRate: decimal.RequireFromString("1.2"),
			Movements:    amounts(200, 450, -400, 3000, -650, -130, 70, 1300),
		},
		{
			Owner:        "Jessica Davis",
			Username:     "jd",
			PIN:          "2222",
			InterestRate: decimal.RequireFromString("1.5"),
			Movements:    amounts(5000, 3400, -150, -790, -3210, -1000, 8500, -30),
		},
		{
			Owner:        "Steven Thomas Williams",
			Username:     "stw",
			PIN:          "3333",
			InterestRate: decimal.RequireFromString("0.7"),
			Movements:    amounts(200, -200, 340, -300, -20, 50, 400, -460),
		},
		{
			Owner:        "Sarah Smith",
			Username:     "ss",
			PIN:          "4444",
			InterestRate: decimal.NewFromInt(1),
			Movements:    amounts(430, 1000, 700, 50, 90),
		},
	}
}

// Seed creates every fixture that does not exist yet, each with its history
// in one transaction. Existing usernames are left untouched.
func Seed(ctx context.Context, store domain.Store, fixtures []Fixture, logger *zap.Logger) ([]*domain.Account, error) {
	created := make([]*domain.Account, 0, len(fixtures))

	for _, f := range fixtures {
		var account *domain.Account
		err := store.WithTransaction(ctx, func(tx domain.Store) error {
			var err error
			account, err = service.NewAccountService(tx, nil, logger).CreateAccount(ctx, &service.NewAccount{
				Username:     f.Username,
				Owner:        f.Owner,
				PIN:          f.PIN,
				InterestRate: f.InterestRate,
			})
			if err != nil {
				return err
			}

			movements := make([]*domain.Movement, 0, len(f.Movements))
			for _, amount := range f.Movements {
				if amount.IsNegative() {
					movements = append(movements, domain.NewWithdrawal(account.ID, amount))
				} else {
					movements = append(movements, domain.NewDeposit(account.ID, amount))
				}
			}
			return tx.Movements().InsertMovements(ctx, movements...)
		})
		if stderrors.Is(err, errors.ErrDuplicateUsername) {
			logger.Info("Seed account already present", zap.String("username", f.Username))
			continue
		}
		if err != nil {
			return created, err
		}

		logger.Info("Seeded account",
			zap.String("username", f.Username),
			zap.Int64("account_id", account.ID),
			zap.Int("movements", len(f.Movements)))
		created = append(created, account)
	}

	return created, nil
}
