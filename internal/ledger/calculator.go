// Package ledger derives balances and summary figures from movement history.
// Every function here is pure and order independent.
package ledger

import (
	"github.com/shopspring/decimal"

	"bankist-ledger/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)

	// MinInterest is the smallest per-deposit interest counted in a summary.
	MinInterest = decimal.NewFromInt(1)

	// LoanDepositRatio is the share of a requested loan that at least one
	// past deposit must cover.
	LoanDepositRatio = decimal.New(1, -1)
)

const (
	// MaxIntegerDigits is the integer part of the NUMERIC(15,2) amount column.
	MaxIntegerDigits = 13
	// MaxScale bounds the fractional digits accepted before rounding checks.
	MaxScale = 16
)

// WithinBounds reports whether amount fits the amount column. It inspects
// only the exponent and coefficient length, so it stays cheap for inputs
// like 1e10000000 that would otherwise be rescaled to a huge integer.
func WithinBounds(amount decimal.Decimal) bool {
	exp := int(amount.Exponent())
	if exp < -MaxScale || exp > MaxIntegerDigits {
		return false
	}
	return amount.NumDigits()+exp <= MaxIntegerDigits
}

type Summary struct {
	Balance  decimal.Decimal `json:"balance"`
	TotalIn  decimal.Decimal `json:"total_in"`
	TotalOut decimal.Decimal `json:"total_out"`
	Interest decimal.Decimal `json:"interest"`
}

// Balance is the sum of all movement amounts.
func Balance(movements []domain.Movement) decimal.Decimal {
	balance := decimal.Zero
	for _, m := range movements {
		balance = balance.Add(m.Amount)
	}
	return balance
}

// Summarize folds the movements into balance, inflow, outflow and qualifying
// interest. Interest is amount*rate/100 per positive movement; terms below
// MinInterest contribute nothing.
func Summarize(movements []domain.Movement, interestRate decimal.Decimal) Summary {
	s := Summary{
		Balance:  decimal.Zero,
		TotalIn:  decimal.Zero,
		TotalOut: decimal.Zero,
		Interest: decimal.Zero,
	}

	for _, m := range movements {
		s.Balance = s.Balance.Add(m.Amount)

		if m.Amount.IsNegative() {
			s.TotalOut = s.TotalOut.Add(m.Amount.Neg())
			continue
		}
		if !m.Amount.IsPositive() {
			continue
		}

		s.TotalIn = s.TotalIn.Add(m.Amount)
		interest := m.Amount.Mul(interestRate).Div(hundred)
		if interest.GreaterThanOrEqual(MinInterest) {
			s.Interest = s.Interest.Add(interest)
		}
	}

	return s
}

// NormalizeLoanAmount truncates a requested loan toward zero.
func NormalizeLoanAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(0)
}

// HasQualifyingDeposit reports whether any deposit covers at least
// LoanDepositRatio of the loan amount.
func HasQualifyingDeposit(movements []domain.Movement, loanAmount decimal.Decimal) bool {
	threshold := loanAmount.Mul(LoanDepositRatio)
	for _, m := range movements {
		if m.Kind != domain.MovementDeposit || !m.Amount.IsPositive() {
			continue
		}
		if m.Amount.GreaterThanOrEqual(threshold) {
			return true
		}
	}
	return false
}
