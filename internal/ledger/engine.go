// Package ledger computes day-by-day loan balances: outstanding principal
// tracked as FIFO tranches, markup accrued daily at the rate each tranche
// resolves to under the bank's regime.
//
// Islamic banks lock every tranche to the rate in force when it opened.
// Conventional banks pin a tranche to its opening rate only for the first
// partial calendar month; from the next month's first day the rate is
// re-resolved once per month from that month's first day, producing a step
// function that only moves at month boundaries.
package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/dates"
	"github.com/taimuradam/sugar-app/internal/models"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// Store is the slice of persistence the engine reads from.
type Store interface {
	Bank(ctx context.Context, bankID int64) (models.Bank, error)
	Loan(ctx context.Context, bankID, loanID int64) (models.Loan, error)
	// TransactionsThrough returns all transactions for the loan dated on or
	// before end, ordered by date then id.
	TransactionsThrough(ctx context.Context, bankID, loanID int64, end civil.Date) ([]models.Transaction, error)
	// RatesThrough returns all rate rows for the bank effective on or
	// before end, ordered by tenor then effective date.
	RatesThrough(ctx context.Context, bankID int64, end civil.Date) ([]models.Rate, error)
}

// Engine walks a date range and emits one ledger row per day.
type Engine struct {
	store Store
	log   *logrus.Logger
}

// NewEngine initializes a new ledger engine
func NewEngine(store Store, log *logrus.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Compute produces one row per calendar day in [start, end] inclusive.
// The walk itself begins at the earliest transaction if that predates
// start, so state carried into the requested window is exact.
func (e *Engine) Compute(ctx context.Context, bankID, loanID int64, start, end civil.Date) ([]models.LedgerRow, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}

	bank, err := e.store.Bank(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank %d: %w", bankID, err)
	}
	loan, err := e.store.Loan(ctx, bankID, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load loan %d: %w", loanID, err)
	}

	txs, err := e.store.TransactionsThrough(ctx, bankID, loanID, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	rates, err := e.store.RatesThrough(ctx, bankID, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}

	txByDay := make(map[civil.Date][]models.Transaction)
	for _, t := range txs {
		txByDay[t.Date] = append(txByDay[t.Date], t)
	}

	calcStart := start
	if len(txs) > 0 && txs[0].Date.Before(calcStart) {
		calcStart = txs[0].Date
	}

	book := newRateBook(rates)

	w := &walker{
		bankType:    bank.Type,
		tenor:       loan.TenorMonths,
		placeholder: loan.PlaceholderRate,
		addl:        loan.AdditionalRate,
		book:        book,
		monthRates:  make(map[civil.Date]decimal.Decimal),
	}

	accrued := decimal.Zero
	var tranches []tranche
	var rows []models.LedgerRow

	for day := calcStart; !day.After(end); day = day.AddDays(1) {
		for _, t := range txByDay[day] {
			switch t.Category {
			case models.CategoryPrincipal:
				locked := decimal.Zero
				hasLocked := false
				if bank.Type != models.BankTypeIslamic && t.Amount.IsPositive() {
					locked = book.latestOn(loan.TenorMonths, t.Date, loan.PlaceholderRate)
					hasLocked = true
				}
				tranches = applyPrincipal(tranches, t.Date, t.Amount, locked, hasLocked)
			case models.CategoryMarkup:
				accrued = accrued.Add(t.Amount)
			}
		}

		dailyMarkup := decimal.Zero
		for i := range tranches {
			rate := w.baseRateFor(day, &tranches[i]).Add(w.addl)
			dailyRate := rate.Div(hundred).Div(daysPerYear)
			dailyMarkup = dailyMarkup.Add(tranches[i].amount.Mul(dailyRate))
		}

		accrued = accrued.Add(dailyMarkup)
		if accrued.IsNegative() {
			accrued = decimal.Zero
		}

		if !day.Before(start) {
			rows = append(rows, models.LedgerRow{
				Date:             day,
				PrincipalBalance: totalPrincipal(tranches).Round(2).InexactFloat64(),
				DailyMarkup:      dailyMarkup.InexactFloat64(),
				AccruedMarkup:    accrued.InexactFloat64(),
				RatePercent:      w.weightedRate(day, tranches).InexactFloat64(),
			})
		}
	}

	e.log.WithFields(logrus.Fields{
		"bank_id": bankID,
		"loan_id": loanID,
		"days":    len(rows),
	}).Debug("ledger computed")
	return rows, nil
}

// walker holds the per-computation rate resolution state.
type walker struct {
	bankType    models.BankType
	tenor       int
	placeholder decimal.Decimal
	addl        decimal.Decimal
	book        *rateBook
	// monthRates caches the rate resolved at each month's first day so
	// conventional tranches re-resolve once per month, not once per day.
	monthRates map[civil.Date]decimal.Decimal
}

func (w *walker) rateForMonthStart(ms civil.Date) decimal.Decimal {
	if v, ok := w.monthRates[ms]; ok {
		return v
	}
	v := w.book.latestOn(w.tenor, ms, w.placeholder)
	w.monthRates[ms] = v
	return v
}

// baseRateFor resolves the index rate (before spread) for one tranche on
// one day, per the bank's regime.
func (w *walker) baseRateFor(day civil.Date, tr *tranche) decimal.Decimal {
	if w.bankType == models.BankTypeIslamic {
		// Fixed forever at the rate in force when the tranche opened.
		return w.book.latestOn(w.tenor, tr.start, w.placeholder)
	}

	if day.Before(dates.NextMonthStart(tr.start)) {
		// First partial month: pinned to the open-time capture.
		if tr.hasLockedRate {
			return tr.lockedRate
		}
		return w.book.latestOn(w.tenor, tr.start, w.placeholder)
	}

	return w.rateForMonthStart(dates.MonthStart(day))
}

// weightedRate is the amount-weighted average effective rate across live
// tranches, zero if no principal is outstanding.
func (w *walker) weightedRate(day civil.Date, tranches []tranche) decimal.Decimal {
	total := totalPrincipal(tranches)
	if !total.IsPositive() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := range tranches {
		rate := w.baseRateFor(day, &tranches[i]).Add(w.addl)
		sum = sum.Add(tranches[i].amount.Mul(rate))
	}
	return sum.Div(total)
}
