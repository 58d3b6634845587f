package repository

import (
	"context"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
)

type movementRepository struct {
	db     SQLExecutor
	logger *zap.Logger
}

func NewMovementRepository(db SQLExecutor, logger *zap.Logger) domain.MovementRepository {
	return &movementRepository{
		db:     db,
		logger: logger,
	}
}

func (r *movementRepository) InsertMovements(ctx context.Context, movements ...*domain.Movement) error {
	query := `
		INSERT INTO movements (account_id, amount, kind)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	for _, m := range movements {
		if !m.Consistent() {
			r.logger.Error("Rejected inconsistent movement",
				zap.Int64("account_id", m.AccountID),
				zap.String("amount", m.Amount.String()),
				zap.String("kind", string(m.Kind)))
			return errors.ErrInvalidAmount.WithDetails("movement sign does not match its kind")
		}

		err := r.db.QueryRowContext(ctx, query, m.AccountID, m.Amount.String(), string(m.Kind)).
			Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			var pqErr *pq.Error
			if stderrors.As(err, &pqErr) {
				switch pqErr.Code {
				case foreignKeyViolation:
					r.logger.Warn("Movement for unknown account", zap.Int64("account_id", m.AccountID))
					return errors.ErrAccountNotFound
				case checkViolation:
					return errors.ErrInvalidAmount.WithDetails(pqErr.Message)
				case numericOverflow:
					r.logger.Warn("Movement amount out of range",
						zap.Int64("account_id", m.AccountID),
						zap.String("amount", m.Amount.String()))
					return errors.ErrInvalidAmount.WithDetails("amount is out of range")
				}
			}
			r.logger.Error("Failed to insert movement",
				zap.Int64("account_id", m.AccountID),
				zap.String("amount", m.Amount.String()),
				zap.Error(err))
			return errors.NewStorageFailure("failed to insert movement", err)
		}
	}

	return nil
}

func (r *movementRepository) ListMovements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	query := `
		SELECT id, account_id, amount, kind, created_at
		FROM movements
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to list movements", zap.Int64("account_id", accountID), zap.Error(err))
		return nil, errors.NewStorageFailure("failed to list movements", err)
	}
	defer rows.Close()

	movements := make([]domain.Movement, 0)
	for rows.Next() {
		var m domain.Movement
		var amountStr, kind string
		if err := rows.Scan(&m.ID, &m.AccountID, &amountStr, &kind, &m.CreatedAt); err != nil {
			return nil, errors.NewStorageFailure("failed to scan movement", err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, errors.NewStorageFailure("failed to parse amount", err)
		}
		m.Amount = amount
		m.Kind = domain.MovementKind(kind)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure("failed to list movements", err)
	}

	return movements, nil
}

func (r *movementRepository) DeleteMovements(ctx context.Context, accountID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM movements WHERE account_id = $1`, accountID)
	if err != nil {
		r.logger.Error("Failed to delete movements", zap.Int64("account_id", accountID), zap.Error(err))
		return 0, errors.NewStorageFailure("failed to delete movements", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorageFailure("failed to get rows affected", err)
	}

	r.logger.Info("Movements deleted", zap.Int64("account_id", accountID), zap.Int64("count", deleted))
	return deleted, nil
}
