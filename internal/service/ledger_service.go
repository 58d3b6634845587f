package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/ledger"
	"bankist-ledger/internal/metrics"
	"bankist-ledger/internal/security"
)

const (
	OperationTransfer = "transfer"
	OperationLoan     = "loan"
	OperationClose    = "close_account"
)

// Recorder receives ledger operation outcomes.
type Recorder interface {
	ObserveLedger(operation, outcome, reason string, duration time.Duration)
	MovementsWritten(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLedger(string, string, string, time.Duration) {}
func (nopRecorder) MovementsWritten(int)                                {}

// LedgerService is the transaction engine. Every operation validates its
// input, then runs its precondition reads and its writes as one unit of work
// holding row locks on the accounts it touches. Nothing is written unless
// every precondition holds.
type LedgerService struct {
	store    domain.Store
	recorder Recorder
	logger   *zap.Logger
}

func NewLedgerService(store domain.Store, recorder Recorder, logger *zap.Logger) *LedgerService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &LedgerService{
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

type TransferRequest struct {
	SourceAccountID     int64
	DestinationUsername string
	Amount              decimal.Decimal
}

type LoanRequest struct {
	AccountID int64
	Amount    decimal.Decimal
}

type CloseRequest struct {
	AccountID int64
	Username  string
	PIN       string
}

// ValidateTransferAmount accepts positive amounts with at most two decimal
// places.
func ValidateTransferAmount(amount decimal.Decimal) error {
	if !ledger.WithinBounds(amount) {
		return errors.ErrInvalidAmount.WithDetails("amount is out of range")
	}
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.ErrInvalidAmount.WithDetails("at most two decimal places are allowed")
	}
	return nil
}

func (s *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (err error) {
	start := time.Now()
	defer func() { s.observe(OperationTransfer, start, err) }()

	if err := ValidateTransferAmount(req.Amount); err != nil {
		return err
	}

	s.logger.Info("Processing transfer",
		zap.Int64("source_account_id", req.SourceAccountID),
		zap.String("destination_username", req.DestinationUsername),
		zap.String("amount", req.Amount.String()))
	if req.SourceAccountID <= 0 {
		return errors.ErrInvalidAccountID
	}

	err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
		destID, err := NewDirectory(tx.Accounts()).Resolve(ctx, req.DestinationUsername)
		if err != nil {
			if stderrors.Is(err, errors.ErrAccountNotFound) {
				return errors.ErrRecipientNotFound
			}
			return err
		}

		if destID == req.SourceAccountID {
			return errors.ErrSelfTransfer
		}

		if err := tx.Accounts().LockAccounts(ctx, req.SourceAccountID, destID); err != nil {
			if !stderrors.Is(err, errors.ErrAccountNotFound) {
				return err
			}
			// either side may have been closed since it was resolved
			if _, srcErr := tx.Accounts().GetAccount(ctx, req.SourceAccountID); srcErr != nil {
				return srcErr
			}
			return errors.ErrRecipientNotFound
		}

		movements, err := tx.Movements().ListMovements(ctx, req.SourceAccountID)
		if err != nil {
			return err
		}

		balance := ledger.Balance(movements)
		if balance.LessThan(req.Amount) {
			s.logger.Warn("Insufficient funds",
				zap.Int64("source_account_id", req.SourceAccountID),
				zap.String("balance", balance.String()),
				zap.String("amount", req.Amount.String()))
			return errors.ErrInsufficientFunds
		}

		return tx.Movements().InsertMovements(ctx,
			domain.NewWithdrawal(req.SourceAccountID, req.Amount),
			domain.NewDeposit(destID, req.Amount),
		)
	})
	if err != nil {
		s.logger.Warn("Transfer failed", zap.Int64("source_account_id", req.SourceAccountID), zap.Error(err))
		return err
	}

	s.recorder.MovementsWritten(2)
	s.logger.Info("Transfer completed successfully", zap.Int64("source_account_id", req.SourceAccountID))
	return nil
}

// RequestLoan truncates the amount toward zero and grants it as a deposit if
// some earlier deposit covers at least a tenth of it.
func (s *LedgerService) RequestLoan(ctx context.Context, req *LoanRequest) (movement *domain.Movement, err error) {
	start := time.Now()
	defer func() { s.observe(OperationLoan, start, err) }()

	if !ledger.WithinBounds(req.Amount) {
		return nil, errors.ErrInvalidAmount.WithDetails("amount is out of range")
	}

	amount := ledger.NormalizeLoanAmount(req.Amount)
	s.logger.Info("Processing loan request",
		zap.Int64("account_id", req.AccountID),
		zap.String("requested", req.Amount.String()),
		zap.String("amount", amount.String()))

	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}
	if req.AccountID <= 0 {
		return nil, errors.ErrInvalidAccountID
	}

	deposit := domain.NewDeposit(req.AccountID, amount)
	err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if err := tx.Accounts().LockAccounts(ctx, req.AccountID); err != nil {
			return err
		}

		movements, err := tx.Movements().ListMovements(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if !ledger.HasQualifyingDeposit(movements, amount) {
			s.logger.Warn("Loan denied", zap.Int64("account_id", req.AccountID), zap.String("amount", amount.String()))
			return errors.ErrLoanDenied
		}

		return tx.Movements().InsertMovements(ctx, deposit)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.MovementsWritten(1)
	s.logger.Info("Loan approved", zap.Int64("account_id", req.AccountID), zap.Int64("movement_id", deposit.ID))
	return deposit, nil
}

// CloseAccount confirms the credentials and removes the account together
// with every movement it owns.
func (s *LedgerService) CloseAccount(ctx context.Context, req *CloseRequest) (err error) {
	start := time.Now()
	defer func() { s.observe(OperationClose, start, err) }()

	s.logger.Info("Processing account closure", zap.Int64("account_id", req.AccountID))

	if req.AccountID <= 0 {
		return errors.ErrInvalidAccountID
	}

	var deleted int64
	err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if err := tx.Accounts().LockAccounts(ctx, req.AccountID); err != nil {
			if stderrors.Is(err, errors.ErrAccountNotFound) {
				return errors.ErrInvalidCredential
			}
			return err
		}

		account, err := tx.Accounts().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if account.Username != req.Username {
			return errors.ErrInvalidCredential
		}
		if err := security.VerifyPIN(account.PINHash, req.PIN); err != nil {
			if stderrors.Is(err, security.ErrPINMismatch) {
				return errors.ErrInvalidCredential
			}
			return errors.NewStorageFailure("failed to verify credentials", err)
		}

		if deleted, err = tx.Movements().DeleteMovements(ctx, req.AccountID); err != nil {
			return err
		}
		return tx.Accounts().DeleteAccount(ctx, req.AccountID)
	})
	if err != nil {
		s.logger.Warn("Account closure failed", zap.Int64("account_id", req.AccountID), zap.Error(err))
		return err
	}

	s.logger.Info("Account closed", zap.Int64("account_id", req.AccountID), zap.Int64("movements_removed", deleted))
	return nil
}

func (s *LedgerService) observe(operation string, start time.Time, err error) {
	duration := time.Since(start)
	if err == nil {
		s.recorder.ObserveLedger(operation, metrics.OutcomeSuccess, "", duration)
		return
	}

	appErr := errors.AsAppError(err)
	outcome := metrics.OutcomeRejected
	if appErr.Code == errors.StorageFailure {
		outcome = metrics.OutcomeFailed
	}
	s.recorder.ObserveLedger(operation, outcome, string(appErr.Code), duration)
}
