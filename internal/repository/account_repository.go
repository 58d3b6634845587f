package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sort"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *zap.Logger
}

func NewAccountRepository(db SQLExecutor, logger *zap.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (username, owner, pin_hash, interest_rate)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		account.Username,
		account.Owner,
		account.PINHash,
		account.InterestRate.String(),
	).Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate username", zap.String("username", account.Username))
			return errors.ErrDuplicateUsername
		}
		r.logger.Error("Failed to create account", zap.String("username", account.Username), zap.Error(err))
		return errors.NewStorageFailure("failed to create account", err)
	}

	r.logger.Info("Account created successfully", zap.Int64("account_id", account.ID))
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	query := `
		SELECT id, username, owner, pin_hash, interest_rate, created_at
		FROM accounts WHERE id = $1
	`

	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `
		SELECT id, username, owner, pin_hash, interest_rate, created_at
		FROM accounts WHERE username = $1
	`

	return r.scanAccount(ctx, query, username)
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, arg interface{}) (*domain.Account, error) {
	var account domain.Account
	var rateStr string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Username,
		&account.Owner,
		&account.PINHash,
		&rateStr,
		&account.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", zap.Any("key", arg), zap.Error(err))
		return nil, errors.NewStorageFailure("failed to get account", err)
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		r.logger.Error("Failed to parse interest rate", zap.Int64("account_id", account.ID), zap.String("rate", rateStr), zap.Error(err))
		return nil, errors.NewStorageFailure("failed to parse interest rate", err)
	}

	account.InterestRate = rate
	return &account, nil
}

func (r *accountRepository) LockAccounts(ctx context.Context, ids ...int64) error {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	query := `SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(unique))
	if err != nil {
		r.logger.Error("Failed to lock accounts", zap.Int64s("account_ids", unique), zap.Error(err))
		return errors.NewStorageFailure("failed to lock accounts", err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return errors.NewStorageFailure("failed to lock accounts", err)
	}

	if locked != len(unique) {
		r.logger.Warn("Account not found while locking", zap.Int64s("account_ids", unique))
		return errors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) DeleteAccount(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			r.logger.Error("Account still has movements", zap.Int64("account_id", id))
			return errors.NewStorageFailure("account still has movements", err)
		}
		r.logger.Error("Failed to delete account", zap.Int64("account_id", id), zap.Error(err))
		return errors.NewStorageFailure("failed to delete account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageFailure("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to delete", zap.Int64("account_id", id))
		return errors.ErrAccountNotFound
	}

	r.logger.Info("Account deleted", zap.Int64("account_id", id))
	return nil
}
