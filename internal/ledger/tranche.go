package ledger

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// tranche is one slice of outstanding principal. Tranches are ephemeral
// computation state and are never persisted.
type tranche struct {
	start  civil.Date
	amount decimal.Decimal
	// lockedRate is the index rate captured when the tranche opened.
	// Only set for conventional banks.
	lockedRate    decimal.Decimal
	hasLockedRate bool
}

// applyPrincipal opens a new tranche for a disbursement, or repays FIFO
// across existing tranches for a repayment. Fully repaid tranches are
// dropped; remaining amounts never go negative.
func applyPrincipal(tranches []tranche, txDate civil.Date, amount decimal.Decimal, lockedRate decimal.Decimal, hasLockedRate bool) []tranche {
	if amount.IsZero() {
		return tranches
	}

	if amount.IsPositive() {
		return append(tranches, tranche{
			start:         txDate,
			amount:        amount,
			lockedRate:    lockedRate,
			hasLockedRate: hasLockedRate,
		})
	}

	repay := amount.Neg()
	sort.SliceStable(tranches, func(i, j int) bool {
		return tranches[i].start.Before(tranches[j].start)
	})
	for i := range tranches {
		if !repay.IsPositive() {
			break
		}
		t := &tranches[i]
		if t.amount.LessThanOrEqual(repay) {
			repay = repay.Sub(t.amount)
			t.amount = decimal.Zero
		} else {
			t.amount = t.amount.Sub(repay)
			repay = decimal.Zero
		}
	}

	live := tranches[:0]
	for _, t := range tranches {
		if t.amount.IsPositive() {
			live = append(live, t)
		}
	}
	return live
}

func totalPrincipal(tranches []tranche) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tranches {
		total = total.Add(t.amount)
	}
	return total
}
