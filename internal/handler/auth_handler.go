package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/service"
	"bankist-ledger/internal/session"
)

// AccountService is the account-facing part of the service layer used by
// the handlers.
type AccountService interface {
	Login(ctx context.Context, username, pin string) (*service.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*session.Session, error)
	Logout(ctx context.Context, token string) error
	EndSessions(ctx context.Context, accountID int64) error
	Movements(ctx context.Context, accountID int64) ([]domain.Movement, error)
	Summary(ctx context.Context, accountID int64) (*service.AccountSummary, error)
}

type sessionKey struct{}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireSession rejects requests without a live bearer session.
func RequireSession(accounts AccountService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := accounts.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}

// authorize checks that the session in ctx belongs to accountID.
func authorize(ctx context.Context, accountID int64) error {
	sess, ok := SessionFromContext(ctx)
	if !ok || sess.AccountID != accountID {
		return errors.NewAppError(errors.InvalidCredential, "session does not grant access to this account")
	}
	return nil
}

type AuthHandler struct {
	accountService AccountService
}

func NewAuthHandler(accountService AccountService) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
}

type AccountResponse struct {
	ID           int64  `json:"id"`
	Owner        string `json:"owner"`
	Username     string `json:"username"`
	InterestRate string `json:"interest_rate"`
}

type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginResponse struct {
	Account   AccountResponse    `json:"account"`
	Movements []MovementResponse `json:"movements"`
	Summary   SummaryResponse    `json:"summary"`
	Session   SessionResponse    `json:"session"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.accountService.Login(r.Context(), req.Username, req.PIN)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Account: AccountResponse{
			ID:           result.Account.ID,
			Owner:        result.Account.Owner,
			Username:     result.Account.Username,
			InterestRate: result.Account.InterestRate.String(),
		},
		Movements: toMovementResponses(result.Movements),
		Summary:   toSummaryResponse(result.Summary),
		Session: SessionResponse{
			Token:     result.Session.Token,
			ExpiresAt: result.Session.ExpiresAt,
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accountService.Logout(r.Context(), bearerToken(r)); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}
