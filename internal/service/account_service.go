package service

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/ledger"
	"bankist-ledger/internal/security"
	"bankist-ledger/internal/session"
)

type AccountService struct {
	store    domain.Store
	sessions session.Store
	logger   *zap.Logger
}

func NewAccountService(store domain.Store, sessions session.Store, logger *zap.Logger) *AccountService {
	return &AccountService{
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

type NewAccount struct {
	Username     string
	Owner        string
	PIN          string
	InterestRate decimal.Decimal
}

// LoginResult is everything a freshly authenticated client needs to render
// the account.
type LoginResult struct {
	Account   *domain.Account
	Movements []domain.Movement
	Summary   ledger.Summary
	Session   *session.Session
}

type AccountSummary struct {
	Account *domain.Account
	ledger.Summary
}

// CreateAccount provisions an account. It is used by seeding and tests;
// the public API never creates accounts.
func (s *AccountService) CreateAccount(ctx context.Context, req *NewAccount) (*domain.Account, error) {
	s.logger.Info("Creating account", zap.String("username", req.Username))

	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Owner) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "username and owner are required")
	}
	if req.InterestRate.IsNegative() {
		return nil, errors.NewAppError(errors.InvalidInput, "interest rate must not be negative")
	}

	hash, err := security.HashPIN(req.PIN)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid pin").WithDetails(err.Error())
	}

	account := &domain.Account{
		Username:     username,
		Owner:        strings.TrimSpace(req.Owner),
		PINHash:      hash,
		InterestRate: req.InterestRate,
	}
	if err := s.store.Accounts().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// Login verifies the credential and opens a session.
func (s *AccountService) Login(ctx context.Context, username, pin string) (*LoginResult, error) {
	account, err := s.store.Accounts().GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			s.logger.Warn("Login for unknown username")
			_ = security.VerifyUnknown(pin)
			return nil, errors.ErrInvalidCredential
		}
		return nil, err
	}

	if err := security.VerifyPIN(account.PINHash, pin); err != nil {
		if stderrors.Is(err, security.ErrPINMismatch) {
			s.logger.Warn("Login with wrong pin", zap.Int64("account_id", account.ID))
			return nil, errors.ErrInvalidCredential
		}
		return nil, errors.NewStorageFailure("failed to verify credentials", err)
	}

	movements, err := s.store.Movements().ListMovements(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		s.logger.Error("Failed to create session", zap.Int64("account_id", account.ID), zap.Error(err))
		return nil, errors.NewStorageFailure("failed to create session", err)
	}

	s.logger.Info("Login succeeded", zap.Int64("account_id", account.ID))
	return &LoginResult{
		Account:   account,
		Movements: movements,
		Summary:   ledger.Summarize(movements, account.InterestRate),
		Session:   sess,
	}, nil
}

// Authenticate resolves a bearer token to its live session and slides its expiry.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, errors.ErrInvalidCredential
	}

	sess, err := s.sessions.Touch(ctx, token)
	if err != nil {
		if stderrors.Is(err, session.ErrNotFound) {
			return nil, errors.ErrSessionExpired
		}
		return nil, errors.NewStorageFailure("failed to read session", err)
	}
	return sess, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return errors.NewStorageFailure("failed to revoke session", err)
	}
	return nil
}

// EndSessions revokes every session of a closed account.
func (s *AccountService) EndSessions(ctx context.Context, accountID int64) error {
	if err := s.sessions.RevokeAccount(ctx, accountID); err != nil {
		s.logger.Error("Failed to revoke sessions", zap.Int64("account_id", accountID), zap.Error(err))
		return errors.NewStorageFailure("failed to revoke sessions", err)
	}
	return nil
}

// Movements returns the account's movements, newest first.
func (s *AccountService) Movements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	if _, err := NewDirectory(s.store.Accounts()).Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Movements().ListMovements(ctx, accountID)
}

func (s *AccountService) Summary(ctx context.Context, accountID int64) (*AccountSummary, error) {
	account, err := NewDirectory(s.store.Accounts()).Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	movements, err := s.store.Movements().ListMovements(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &AccountSummary{
		Account: account,
		Summary: ledger.Summarize(movements, account.InterestRate),
	}, nil
}
