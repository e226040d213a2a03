package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"

	"github.com/taimuradam/sugar-app/internal/models"
)

// RatesThrough retrieves all rate rows for the bank effective on or
// before end, ordered by tenor then effective date. Preloading the whole
// set keeps the ledger walk at one query instead of one per day.
func (r *Repository) RatesThrough(ctx context.Context, bankID int64, end civil.Date) ([]models.Rate, error) {
	query := `
		SELECT id, bank_id, tenor_months, effective_date, annual_rate_percent, created_at
		FROM bank.rates
		WHERE bank_id = $1 AND effective_date <= $2
		ORDER BY tenor_months, effective_date`
	rows, err := r.db.QueryContext(ctx, query, bankID, toSQLDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var rates []models.Rate
	for rows.Next() {
		var rt models.Rate
		var day time.Time
		if err := rows.Scan(&rt.ID, &rt.BankID, &rt.TenorMonths, &day, &rt.AnnualRate, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rt.EffectiveDate = civil.DateOf(day)
		rates = append(rates, rt)
	}
	return rates, rows.Err()
}

// ListRates retrieves all rate rows of a bank, ascending by date
func (r *Repository) ListRates(ctx context.Context, bankID int64) ([]models.Rate, error) {
	return r.RatesThrough(ctx, bankID, civil.Date{Year: 9999, Month: 12, Day: 31})
}

// UpsertRateIfAbsent inserts a rate row unless one already exists for the
// exact (bank, tenor, effective date) key. Safe under concurrent callers.
func (r *Repository) UpsertRateIfAbsent(ctx context.Context, rate models.Rate) error {
	query := `
		INSERT INTO bank.rates (bank_id, tenor_months, effective_date, annual_rate_percent, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (bank_id, tenor_months, effective_date) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		rate.BankID, rate.TenorMonths, toSQLDate(rate.EffectiveDate), rate.AnnualRate)
	if err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}

// PrincipalDebitDates returns the distinct dates of positive principal
// transactions for the loan. These are the tranche-open anchor dates.
func (r *Repository) PrincipalDebitDates(ctx context.Context, bankID, loanID int64) ([]civil.Date, error) {
	query := `
		SELECT DISTINCT date
		FROM bank.transactions
		WHERE bank_id = $1 AND loan_id = $2 AND category = 'principal' AND amount > 0
		ORDER BY date`
	rows, err := r.db.QueryContext(ctx, query, bankID, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debit dates: %w", err)
	}
	defer rows.Close()

	var days []civil.Date
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan debit date: %w", err)
		}
		days = append(days, civil.DateOf(day))
	}
	return days, rows.Err()
}

// ExistingRateDates reports which of the given dates already carry a rate
// row for the bank and tenor.
func (r *Repository) ExistingRateDates(ctx context.Context, bankID int64, tenorMonths int, days []civil.Date) (map[civil.Date]bool, error) {
	if len(days) == 0 {
		return map[civil.Date]bool{}, nil
	}

	sqlDays := make([]time.Time, len(days))
	for i, d := range days {
		sqlDays[i] = toSQLDate(d)
	}

	query := `
		SELECT effective_date
		FROM bank.rates
		WHERE bank_id = $1 AND tenor_months = $2 AND effective_date = ANY($3)`
	rows, err := r.db.QueryContext(ctx, query, bankID, tenorMonths, pq.Array(sqlDays))
	if err != nil {
		return nil, fmt.Errorf("failed to check rate dates: %w", err)
	}
	defer rows.Close()

	have := make(map[civil.Date]bool)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan rate date: %w", err)
		}
		have[civil.DateOf(day)] = true
	}
	return have, rows.Err()
}
