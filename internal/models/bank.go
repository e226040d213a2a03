package models

import (
	"fmt"
	"time"
)

// BankType distinguishes the two rate-locking regimes a bank can run.
type BankType string

const (
	BankTypeConventional BankType = "conventional"
	BankTypeIslamic      BankType = "islamic"
)

// ParseBankType validates a raw bank type string
func ParseBankType(s string) (BankType, error) {
	switch BankType(s) {
	case BankTypeConventional, BankTypeIslamic:
		return BankType(s), nil
	}
	return "", fmt.Errorf("unknown bank type: %q", s)
}

// Bank represents a lending bank
type Bank struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      BankType  `json:"bank_type"`
	CreatedAt time.Time `json:"created_at"`
}
