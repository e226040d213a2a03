package models

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TxCategory distinguishes principal movements from markup postings.
type TxCategory string

const (
	CategoryPrincipal TxCategory = "principal"
	CategoryMarkup    TxCategory = "markup"
)

// ParseTxCategory validates a raw transaction category string
func ParseTxCategory(s string) (TxCategory, error) {
	switch TxCategory(s) {
	case CategoryPrincipal, CategoryMarkup:
		return TxCategory(s), nil
	}
	return "", fmt.Errorf("unknown transaction category: %q", s)
}

// Transaction represents a financial transaction against a loan.
// Positive principal is a disbursement, negative a repayment; positive
// markup is a manual accrual adjustment, negative a payment against it.
type Transaction struct {
	ID        int64           `json:"id"`
	BankID    int64           `json:"bank_id"`
	LoanID    int64           `json:"loan_id"`
	Date      civil.Date      `json:"date"`
	Category  TxCategory      `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
