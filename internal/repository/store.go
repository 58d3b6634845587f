package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       DB
	executor SQLExecutor
	logger   *zap.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

// Accounts returns an AccountRepository using the current executor
func (s *Store) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Movements returns a MovementRepository using the current executor
func (s *Store) Movements() domain.MovementRepository {
	return NewMovementRepository(s.executor, s.logger)
}

// WithTransaction executes fn within a single READ COMMITTED database
// transaction. Callers serialize conflicting work with row locks taken
// through AccountRepository.LockAccounts. Nested calls join the outer
// transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", zap.Error(err))
		return errors.NewStorageFailure("failed to begin transaction", err)
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return errors.AsAppError(err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", zap.Error(err))
		return errors.NewStorageFailure("failed to commit transaction", err)
	}
	return nil
}
