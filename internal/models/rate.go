package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Rate is one observation of an annual index rate for a bank and tenor.
// At most one row exists per (bank, tenor, effective date); rows are
// append-only from the ledger's point of view.
type Rate struct {
	ID            int64           `json:"id"`
	BankID        int64           `json:"bank_id"`
	TenorMonths   int             `json:"tenor_months"`
	EffectiveDate civil.Date      `json:"effective_date"`
	AnnualRate    decimal.Decimal `json:"annual_rate_percent"`
	CreatedAt     time.Time       `json:"created_at"`
}
