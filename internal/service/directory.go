package service

import (
	"context"
	"strings"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
)

// Directory resolves usernames to accounts. It is read-only; accounts are
// provisioned externally.
type Directory struct {
	accounts domain.AccountRepository
}

func NewDirectory(accounts domain.AccountRepository) *Directory {
	return &Directory{accounts: accounts}
}

// Resolve returns the id of the account registered under username.
func (d *Directory) Resolve(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, errors.ErrAccountNotFound
	}

	account, err := d.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

func (d *Directory) Account(ctx context.Context, id int64) (*domain.Account, error) {
	if id <= 0 {
		return nil, errors.ErrAccountNotFound
	}
	return d.accounts.GetAccount(ctx, id)
}
