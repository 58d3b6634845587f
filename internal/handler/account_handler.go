package handler

import (
	"net/http"
	"sort"

	"bankist-ledger/internal/domain"
)

type AccountHandler struct {
	accountService AccountService
}

func NewAccountHandler(accountService AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// GetMovements lists the account history, newest first. With ?sort=amount
// the list is ordered by ascending amount instead.
func (h *AccountHandler) GetMovements(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := authorize(r.Context(), accountID); err != nil {
		WriteError(w, err)
		return
	}

	movements, err := h.accountService.Movements(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}

	if r.URL.Query().Get("sort") == "amount" {
		sorted := make([]domain.Movement, len(movements))
		copy(sorted, movements)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Amount.LessThan(sorted[j].Amount)
		})
		movements = sorted
	}

	writeJSON(w, http.StatusOK, toMovementResponses(movements))
}

func (h *AccountHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := authorize(r.Context(), accountID); err != nil {
		WriteError(w, err)
		return
	}

	summary, err := h.accountService.Summary(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryResponse(summary.Summary))
}
