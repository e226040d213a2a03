package models

import "cloud.google.com/go/civil"

// LedgerRow is one computed day of a loan's ledger. Values are converted
// from decimal to float64 here, at the serialization boundary only.
type LedgerRow struct {
	Date             civil.Date `json:"date"`
	PrincipalBalance float64    `json:"principal_balance"`
	DailyMarkup      float64    `json:"daily_markup"`
	AccruedMarkup    float64    `json:"accrued_markup"`
	RatePercent      float64    `json:"rate_percent"`
}
