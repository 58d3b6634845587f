package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/ledger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type MovementResponse struct {
	ID        int64     `json:"id"`
	Amount    string    `json:"amount"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type SummaryResponse struct {
	Balance  string `json:"balance"`
	TotalIn  string `json:"total_in"`
	TotalOut string `json:"total_out"`
	Interest string `json:"interest"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

// WriteError renders err in the error envelope with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	appErr := errors.AsAppError(err)
	writeErrorStatus(w, appErr.HTTPStatus(), appErr)
}

func writeErrorStatus(w http.ResponseWriter, statusCode int, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	// driver messages stay in the logs
	if appErr.Code == errors.StorageFailure {
		errResponse.Details = ""
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

const maxBodyBytes = 1 << 20

// decodeJSON decodes and validates a request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.ErrInvalidInput.WithDetails(err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return errors.ErrInvalidInput.WithDetails(err.Error())
	}
	return nil
}

// maxAmountLength caps the raw amount text before it reaches the decimal parser.
const maxAmountLength = 32

// parseAmount accepts a JSON number or a numeric string. Anything else,
// including amounts outside the storable range, is an invalid amount.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "amount is required")
	}

	var text string
	switch v := value.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "amount must be a number")
	}
	if text == "" || len(text) > maxAmountLength {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "invalid amount format")
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}
	if !ledger.WithinBounds(amount) {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "amount is out of range")
	}
	return amount, nil
}

func parseAccountID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ErrInvalidAccountID
	}
	return id, nil
}

func pathAccountID(r *http.Request) (int64, error) {
	return parseAccountID(mux.Vars(r)["account_id"])
}

func toMovementResponses(movements []domain.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, MovementResponse{
			ID:        m.ID,
			Amount:    m.Amount.StringFixed(2),
			Type:      string(m.Kind),
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func toSummaryResponse(s ledger.Summary) SummaryResponse {
	return SummaryResponse{
		Balance:  s.Balance.StringFixed(2),
		TotalIn:  s.TotalIn.StringFixed(2),
		TotalOut: s.TotalOut.StringFixed(2),
		Interest: s.Interest.StringFixed(2),
	}
}
