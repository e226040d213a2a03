package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/models"
	"github.com/taimuradam/sugar-app/internal/storage/memory"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func day(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	store  *memory.Store
	engine *Engine
	bank   models.Bank
	loan   models.Loan
}

func newFixture(t *testing.T, bankType models.BankType, tenor int, addl, placeholder string) *fixture {
	t.Helper()
	store := memory.NewStore()
	bank := store.AddBank(models.Bank{Name: "Test Bank", Type: bankType})
	loan := store.AddLoan(models.Loan{
		BankID:          bank.ID,
		Name:            "Test Loan",
		TenorMonths:     tenor,
		AdditionalRate:  dec(addl),
		PlaceholderRate: dec(placeholder),
	})
	return &fixture{
		store:  store,
		engine: NewEngine(store, testLogger()),
		bank:   bank,
		loan:   loan,
	}
}

func (f *fixture) addRate(d civil.Date, rate string) {
	f.store.AddRate(models.Rate{
		BankID:        f.bank.ID,
		TenorMonths:   f.loan.TenorMonths,
		EffectiveDate: d,
		AnnualRate:    dec(rate),
	})
}

func (f *fixture) addTx(d civil.Date, category models.TxCategory, amount string) {
	f.store.AddTransaction(models.Transaction{
		BankID:   f.bank.ID,
		LoanID:   f.loan.ID,
		Date:     d,
		Category: category,
		Amount:   dec(amount),
	})
}

func (f *fixture) compute(t *testing.T, start, end civil.Date) []models.LedgerRow {
	t.Helper()
	rows, err := f.engine.Compute(context.Background(), f.bank.ID, f.loan.ID, start, end)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return rows
}

func rowFor(t *testing.T, rows []models.LedgerRow, d civil.Date) models.LedgerRow {
	t.Helper()
	for _, r := range rows {
		if r.Date == d {
			return r
		}
	}
	t.Fatalf("no row for %s", d)
	return models.LedgerRow{}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeEmitsOneRowPerDay(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	f.addTx(day(2026, 1, 1), models.CategoryPrincipal, "1000")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 31))
	if len(rows) != 31 {
		t.Fatalf("expected 31 rows, got %d", len(rows))
	}
	for i, r := range rows {
		want := day(2026, 1, 1).AddDays(i)
		if r.Date != want {
			t.Errorf("row %d: date %s, want %s", i, r.Date, want)
		}
	}
}

func TestFIFORepayment(t *testing.T) {
	// Tranche 1000 on day 1, tranche 500 on day 5, repayment 1200 on day
	// 10: the first tranche is fully consumed, the second drops to 300.
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	f.addTx(day(2026, 1, 1), models.CategoryPrincipal, "1000")
	f.addTx(day(2026, 1, 5), models.CategoryPrincipal, "500")
	f.addTx(day(2026, 1, 10), models.CategoryPrincipal, "-1200")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 15))

	cases := []struct {
		d    civil.Date
		want float64
	}{
		{day(2026, 1, 1), 1000},
		{day(2026, 1, 4), 1000},
		{day(2026, 1, 5), 1500},
		{day(2026, 1, 9), 1500},
		{day(2026, 1, 10), 300},
		{day(2026, 1, 15), 300},
	}
	for _, c := range cases {
		got := rowFor(t, rows, c.d).PrincipalBalance
		if got != c.want {
			t.Errorf("principal on %s: got %v, want %v", c.d, got, c.want)
		}
	}
}

func TestFIFOOverRepaymentClampsAtZero(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	f.addTx(day(2026, 1, 1), models.CategoryPrincipal, "1000")
	f.addTx(day(2026, 1, 5), models.CategoryPrincipal, "-5000")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 10))
	for _, r := range rows {
		if r.PrincipalBalance < 0 {
			t.Fatalf("principal went negative on %s: %v", r.Date, r.PrincipalBalance)
		}
	}
	if got := rowFor(t, rows, day(2026, 1, 5)).PrincipalBalance; got != 0 {
		t.Errorf("principal after over-repayment: got %v, want 0", got)
	}
}

func TestAccruedMarkupNeverNegative(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	f.addTx(day(2026, 1, 1), models.CategoryPrincipal, "1000")
	// Markup payment far exceeding anything accrued.
	f.addTx(day(2026, 1, 10), models.CategoryMarkup, "-999999")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 2, 28))
	for _, r := range rows {
		if r.AccruedMarkup < 0 {
			t.Fatalf("accrued markup negative on %s: %v", r.Date, r.AccruedMarkup)
		}
	}
	if got := rowFor(t, rows, day(2026, 1, 10)).AccruedMarkup; got != 0 {
		t.Errorf("accrued markup after oversized payment: got %v, want 0", got)
	}
}

func TestManualMarkupAdjustment(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "0")
	f.addTx(day(2026, 1, 1), models.CategoryMarkup, "250.50")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 3))
	// Placeholder rate is zero and there is no principal, so the accrued
	// total is exactly the manual posting.
	for _, r := range rows {
		if !approx(r.AccruedMarkup, 250.50) {
			t.Errorf("accrued on %s: got %v, want 250.50", r.Date, r.AccruedMarkup)
		}
		if r.PrincipalBalance != 0 {
			t.Errorf("principal on %s: got %v, want 0", r.Date, r.PrincipalBalance)
		}
	}
}

func TestConventionalMonthStepping(t *testing.T) {
	f := newFixture(t, models.BankTypeConventional, 1, "0", "0")
	f.addRate(day(2025, 12, 8), "11.29")
	f.addRate(day(2025, 12, 21), "11.06")
	f.addRate(day(2026, 1, 1), "12.00")
	f.addTx(day(2025, 12, 8), models.CategoryPrincipal, "1000")
	f.addTx(day(2025, 12, 21), models.CategoryPrincipal, "1000")

	rows := f.compute(t, day(2025, 12, 8), day(2026, 1, 10))

	// Before the second tranche opens only the first accrues, at its
	// locked 11.29.
	r := rowFor(t, rows, day(2025, 12, 20))
	if !approx(r.RatePercent, 11.29) {
		t.Errorf("rate on Dec 20: got %v, want 11.29", r.RatePercent)
	}
	wantDaily := 1000.0 * 11.29 / 100 / 365
	if !approx(r.DailyMarkup, wantDaily) {
		t.Errorf("daily markup on Dec 20: got %v, want %v", r.DailyMarkup, wantDaily)
	}

	// Dec 21 through Dec 31: both tranches at their own locked rates,
	// weighted average (11.29+11.06)/2.
	for d := day(2025, 12, 21); !d.After(day(2025, 12, 31)); d = d.AddDays(1) {
		r := rowFor(t, rows, d)
		if !approx(r.RatePercent, 11.175) {
			t.Errorf("rate on %s: got %v, want 11.175", d, r.RatePercent)
		}
	}

	// From Jan 1 both tranches re-resolve to the month-start rate.
	for d := day(2026, 1, 1); !d.After(day(2026, 1, 10)); d = d.AddDays(1) {
		r := rowFor(t, rows, d)
		if !approx(r.RatePercent, 12.00) {
			t.Errorf("rate on %s: got %v, want 12.00", d, r.RatePercent)
		}
	}
}

func TestConventionalRateStepsOnlyAtMonthBoundary(t *testing.T) {
	// A rate arriving mid-month must not move an already re-priced
	// tranche until the next month starts.
	f := newFixture(t, models.BankTypeConventional, 1, "0", "0")
	f.addRate(day(2025, 11, 1), "10.00")
	f.addRate(day(2025, 12, 15), "13.00")
	f.addTx(day(2025, 11, 10), models.CategoryPrincipal, "1000")

	rows := f.compute(t, day(2025, 12, 1), day(2026, 1, 5))

	// December: month-start lookup (Dec 1) still resolves to 10.00; the
	// Dec 15 observation is ignored until January.
	for d := day(2025, 12, 1); !d.After(day(2025, 12, 31)); d = d.AddDays(1) {
		if r := rowFor(t, rows, d); !approx(r.RatePercent, 10.00) {
			t.Errorf("rate on %s: got %v, want 10.00", d, r.RatePercent)
		}
	}
	for d := day(2026, 1, 1); !d.After(day(2026, 1, 5)); d = d.AddDays(1) {
		if r := rowFor(t, rows, d); !approx(r.RatePercent, 13.00) {
			t.Errorf("rate on %s: got %v, want 13.00", d, r.RatePercent)
		}
	}
}

func TestIslamicMultiTrancheLocking(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "0")
	f.addRate(day(2026, 3, 2), "10")
	f.addRate(day(2026, 3, 3), "12")
	f.addRate(day(2026, 3, 4), "14")
	f.addTx(day(2026, 3, 2), models.CategoryPrincipal, "100")
	f.addTx(day(2026, 3, 3), models.CategoryPrincipal, "100")
	f.addTx(day(2026, 3, 4), models.CategoryPrincipal, "100")

	rows := f.compute(t, day(2026, 3, 2), day(2026, 3, 10))

	cases := []struct {
		d    civil.Date
		want float64
	}{
		{day(2026, 3, 2), 10.0},
		{day(2026, 3, 3), 11.0},
		{day(2026, 3, 4), 12.0},
		// Later rate observations never reprice an open tranche.
		{day(2026, 3, 10), 12.0},
	}
	for _, c := range cases {
		if r := rowFor(t, rows, c.d); !approx(r.RatePercent, c.want) {
			t.Errorf("weighted rate on %s: got %v, want %v", c.d, r.RatePercent, c.want)
		}
	}
}

func TestIslamicPlaceholderFallback(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "1.5", "9.0")
	f.addTx(day(2026, 1, 1), models.CategoryPrincipal, "1000")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 5))
	// No rate rows at all: the placeholder plus the spread applies.
	for _, r := range rows {
		if !approx(r.RatePercent, 10.5) {
			t.Errorf("rate on %s: got %v, want 10.5", r.Date, r.RatePercent)
		}
	}
}

func TestSubrangeConsistency(t *testing.T) {
	f := newFixture(t, models.BankTypeConventional, 1, "2", "8")
	f.addRate(day(2025, 10, 1), "10.5")
	f.addRate(day(2025, 12, 1), "11.25")
	f.addRate(day(2026, 1, 1), "12.0")
	f.addTx(day(2025, 10, 5), models.CategoryPrincipal, "10000")
	f.addTx(day(2025, 11, 20), models.CategoryPrincipal, "2500")
	f.addTx(day(2025, 12, 10), models.CategoryPrincipal, "-4000")
	f.addTx(day(2025, 12, 15), models.CategoryMarkup, "-50")

	full := f.compute(t, day(2025, 10, 1), day(2026, 1, 31))
	sub := f.compute(t, day(2025, 12, 1), day(2026, 1, 15))

	for _, r := range sub {
		want := rowFor(t, full, r.Date)
		if r.PrincipalBalance != want.PrincipalBalance {
			t.Errorf("principal on %s: subrange %v, full %v", r.Date, r.PrincipalBalance, want.PrincipalBalance)
		}
		if r.AccruedMarkup != want.AccruedMarkup {
			t.Errorf("accrued on %s: subrange %v, full %v", r.Date, r.AccruedMarkup, want.AccruedMarkup)
		}
		if r.DailyMarkup != want.DailyMarkup {
			t.Errorf("daily on %s: subrange %v, full %v", r.Date, r.DailyMarkup, want.DailyMarkup)
		}
	}
}

func TestCarryInBeforeRequestedWindow(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	f.addTx(day(2025, 6, 1), models.CategoryPrincipal, "1000")
	f.addTx(day(2025, 6, 20), models.CategoryPrincipal, "-400")

	rows := f.compute(t, day(2026, 1, 1), day(2026, 1, 3))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[0].PrincipalBalance; got != 600 {
		t.Errorf("carried-in principal: got %v, want 600", got)
	}
	// Accrual ran from June even though the window starts in January.
	if rows[0].AccruedMarkup <= 0 {
		t.Errorf("carried-in accrued markup should be positive, got %v", rows[0].AccruedMarkup)
	}
}

func TestLongAccrualMatchesClosedForm(t *testing.T) {
	// One tranche at a constant rate for two years; decimal accrual must
	// stay within a cent of amount*rate*days/365.
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "11.5")
	f.addTx(day(2024, 1, 1), models.CategoryPrincipal, "1000000")

	rows := f.compute(t, day(2024, 1, 1), day(2025, 12, 31))
	last := rows[len(rows)-1]
	days := float64(len(rows))
	want := 1000000.0 * 11.5 / 100 / 365 * days
	if math.Abs(last.AccruedMarkup-want) > 0.01 {
		t.Errorf("accrued after %v days: got %v, want %v +/- 0.01", days, last.AccruedMarkup, want)
	}
}

func TestComputeRejectsInvertedRange(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	if _, err := f.engine.Compute(context.Background(), f.bank.ID, f.loan.ID, day(2026, 2, 1), day(2026, 1, 1)); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestComputeUnknownLoan(t *testing.T) {
	f := newFixture(t, models.BankTypeIslamic, 1, "0", "10")
	if _, err := f.engine.Compute(context.Background(), f.bank.ID, 9999, day(2026, 1, 1), day(2026, 1, 2)); err == nil {
		t.Fatal("expected error for unknown loan")
	}
}
