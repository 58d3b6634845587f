package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/service"
)

type LedgerEngine interface {
	Transfer(ctx context.Context, req *service.TransferRequest) error
	RequestLoan(ctx context.Context, req *service.LoanRequest) (*domain.Movement, error)
	CloseAccount(ctx context.Context, req *service.CloseRequest) error
}

type LedgerHandler struct {
	ledger         LedgerEngine
	accountService AccountService
	logger         *zap.Logger
}

func NewLedgerHandler(ledger LedgerEngine, accountService AccountService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:         ledger,
		accountService: accountService,
		logger:         logger,
	}
}

type TransferRequest struct {
	FromAccountID json.Number     `json:"from_account_id,omitempty"`
	ToUsername    string          `json:"to_username" validate:"required"`
	Amount        json.RawMessage `json:"amount"`
}

type LoanRequest struct {
	AccountID json.Number     `json:"account_id,omitempty"`
	Amount    json.RawMessage `json:"amount"`
}

type CloseAccountRequest struct {
	Username string `json:"username" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
}

type LoanResponse struct {
	Message  string           `json:"message"`
	Movement MovementResponse `json:"movement"`
}

// sessionAccountID resolves the acting account: the explicit id from the
// body when present, which must match the session, otherwise the session's.
func sessionAccountID(ctx context.Context, raw json.Number) (int64, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return 0, errors.ErrInvalidCredential
	}
	if raw == "" {
		return sess.AccountID, nil
	}
	id, err := parseAccountID(raw.String())
	if err != nil {
		return 0, err
	}
	if err := authorize(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	sourceID, err := sessionAccountID(r.Context(), req.FromAccountID)
	if err != nil {
		WriteError(w, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		WriteError(w, err)
		return
	}

	err = h.ledger.Transfer(r.Context(), &service.TransferRequest{
		SourceAccountID:     sourceID,
		DestinationUsername: req.ToUsername,
		Amount:              amount,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Transfer successful"})
}

func (h *LedgerHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	accountID, err := sessionAccountID(r.Context(), req.AccountID)
	if err != nil {
		WriteError(w, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		WriteError(w, err)
		return
	}

	movement, err := h.ledger.RequestLoan(r.Context(), &service.LoanRequest{
		AccountID: accountID,
		Amount:    amount,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoanResponse{
		Message:  "Loan approved",
		Movement: toMovementResponses([]domain.Movement{*movement})[0],
	})
}

// CloseAccount answers every rejection with 400, session problems included;
// only storage failures surface as 500.
func (h *LedgerHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		writeCloseError(w, err)
		return
	}

	sess, err := h.accountService.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeCloseError(w, err)
		return
	}
	if err := authorize(withSession(r.Context(), sess), accountID); err != nil {
		writeCloseError(w, err)
		return
	}

	var req CloseAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCloseError(w, err)
		return
	}

	err = h.ledger.CloseAccount(r.Context(), &service.CloseRequest{
		AccountID: accountID,
		Username:  req.Username,
		PIN:       req.PIN,
	})
	if err != nil {
		writeCloseError(w, err)
		return
	}

	if err := h.accountService.EndSessions(r.Context(), accountID); err != nil {
		h.logger.Warn("Failed to revoke sessions of closed account", zap.Int64("account_id", accountID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account closed successfully"})
}

func writeCloseError(w http.ResponseWriter, err error) {
	appErr := errors.AsAppError(err)
	if appErr.Code == errors.StorageFailure {
		writeErrorStatus(w, http.StatusInternalServerError, appErr)
		return
	}
	writeErrorStatus(w, http.StatusBadRequest, appErr)
}
