package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan represents a loan facility priced against a KIBOR tenor
type Loan struct {
	ID     int64  `json:"id"`
	BankID int64  `json:"bank_id"`
	Name   string `json:"name"`
	// TenorMonths is the KIBOR tenor (in months) this loan is priced against.
	TenorMonths int `json:"kibor_tenor_months"`
	// AdditionalRate is the bank's spread added on top of the index rate.
	AdditionalRate decimal.Decimal `json:"additional_rate"`
	// PlaceholderRate is used whenever no Rate row exists at the lookup date.
	PlaceholderRate decimal.Decimal `json:"kibor_placeholder_rate_percent"`
	CreatedAt       time.Time       `json:"created_at"`
}
