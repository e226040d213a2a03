// Package backfill guarantees that the rate rows the ledger's resolution
// policy will look up exist before a ledger query is trusted. Missing rows
// are fetched on a background worker per (bank, loan) key while callers
// poll a status registry.
package backfill

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/dates"
	"github.com/taimuradam/sugar-app/internal/events"
	"github.com/taimuradam/sugar-app/internal/models"
)

// Store is the slice of persistence the scheduler needs.
type Store interface {
	Bank(ctx context.Context, bankID int64) (models.Bank, error)
	Loan(ctx context.Context, bankID, loanID int64) (models.Loan, error)
	// PrincipalDebitDates returns the distinct dates of positive principal
	// transactions for the loan, in any order.
	PrincipalDebitDates(ctx context.Context, bankID, loanID int64) ([]civil.Date, error)
	// ExistingRateDates reports which of the given dates already have a
	// rate row for the bank and tenor.
	ExistingRateDates(ctx context.Context, bankID int64, tenorMonths int, days []civil.Date) (map[civil.Date]bool, error)
	UpsertRateIfAbsent(ctx context.Context, rate models.Rate) error
}

// RateFetcher supplies per-tenor annual rates applicable as of the
// requested day or the nearest prior trading day.
type RateFetcher interface {
	FetchOfferRates(ctx context.Context, day civil.Date) (map[int]decimal.Decimal, error)
}

// Key identifies one backfill job.
type Key struct {
	BankID int64
	LoanID int64
}

// Scheduler owns the per-key status registry and spawns one worker per
// key on demand. Workers are not cancellable; they run to completion or
// failure.
type Scheduler struct {
	store     Store
	fetcher   RateFetcher
	publisher events.Publisher
	log       *logrus.Logger
	loc       *time.Location

	mu       sync.Mutex
	statuses map[Key]*Status

	// today is swapped out by tests
	today func() civil.Date
}

// NewScheduler initializes a new backfill scheduler. publisher may be nil.
func NewScheduler(store Store, fetcher RateFetcher, publisher events.Publisher, log *logrus.Logger, loc *time.Location) *Scheduler {
	s := &Scheduler{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		log:       log,
		loc:       loc,
		statuses:  make(map[Key]*Status),
	}
	s.today = func() civil.Date { return dates.Today(loc) }
	return s
}

// Status returns the current status for the key, idle if never started.
func (s *Scheduler) Status(bankID, loanID int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(Key{bankID, loanID})
}

func (s *Scheduler) statusLocked(k Key) Status {
	if st, ok := s.statuses[k]; ok {
		return *st
	}
	return Status{State: StateIdle}
}

func (s *Scheduler) setStatus(k Key, update func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[k]
	if !ok {
		st = &Status{State: StateIdle}
		s.statuses[k] = st
	}
	update(st)
}

// IsReady reports whether every rate row the ledger will need for this
// loan already exists, as of the store's current contents.
func (s *Scheduler) IsReady(ctx context.Context, bankID, loanID int64) (bool, error) {
	missing, _, err := s.missingDays(ctx, bankID, loanID)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// EnsureStarted starts a backfill worker for the key unless one is
// already running, and returns the status the caller should report.
func (s *Scheduler) EnsureStarted(ctx context.Context, bankID, loanID int64) (Status, error) {
	k := Key{bankID, loanID}

	missing, loan, err := s.missingDays(ctx, bankID, loanID)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check-and-set under the one lock so two near-simultaneous triggers
	// cannot both start a worker for the same key.
	if cur := s.statusLocked(k); cur.State == StateRunning {
		return cur, nil
	}

	if len(missing) == 0 {
		s.statuses[k] = &Status{State: StateDone}
		return *s.statuses[k], nil
	}

	now := time.Now().UTC()
	st := &Status{
		State:     StateRunning,
		JobID:     uuid.NewString(),
		TotalDays: len(missing),
		StartedAt: &now,
	}
	s.statuses[k] = st

	go s.run(k, loan, missing, st.JobID)
	return *st, nil
}

// run is the background worker. It is deliberately detached from the
// request context: jobs are not cancellable.
func (s *Scheduler) run(k Key, loan models.Loan, missing []civil.Date, jobID string) {
	ctx := context.Background()
	log := s.log.WithFields(logrus.Fields{
		"bank_id": k.BankID,
		"loan_id": k.LoanID,
		"job_id":  jobID,
	})

	// Re-load the loan so a record deleted mid-flight surfaces as an
	// error status instead of writing orphan rate rows.
	if _, err := s.store.Loan(ctx, k.BankID, k.LoanID); err != nil {
		log.WithError(err).Error("backfill job failed")
		s.setStatus(k, func(st *Status) {
			st.State = StateError
			st.Message = err.Error()
		})
		return
	}

	processed := 0
	for _, day := range missing {
		if err := s.fillDay(ctx, k, loan, day); err != nil {
			// A day that cannot be filled is skipped, not fatal: the job
			// still finishes and the gap falls back to the placeholder
			// rate until a later run fills it.
			log.WithError(err).WithField("day", day.String()).Warn("skipping backfill day")
		}
		processed++
		s.setStatus(k, func(st *Status) { st.ProcessedDays = processed })
	}

	s.setStatus(k, func(st *Status) {
		if st.State != StateError {
			st.State = StateDone
			st.Message = ""
		}
	})
	log.WithField("days", processed).Info("backfill job finished")

	if s.publisher != nil {
		evt := events.BackfillCompleted{
			JobID:         jobID,
			BankID:        k.BankID,
			LoanID:        k.LoanID,
			TotalDays:     len(missing),
			ProcessedDays: processed,
			CompletedAt:   time.Now().UTC(),
		}
		if err := s.publisher.Publish(events.TopicBackfillCompleted, evt); err != nil {
			log.WithError(err).Warn("failed to publish backfill event")
		}
	}
}

func (s *Scheduler) fillDay(ctx context.Context, k Key, loan models.Loan, day civil.Date) error {
	rates, err := s.fetcher.FetchOfferRates(ctx, day)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	offer, ok := rates[loan.TenorMonths]
	if !ok {
		return fmt.Errorf("no rate for tenor %dm", loan.TenorMonths)
	}
	// Store under the anchor day itself, not the business day the fetcher
	// resolved to; otherwise the anchor stays missing and the job would
	// re-run forever.
	return s.store.UpsertRateIfAbsent(ctx, models.Rate{
		BankID:        k.BankID,
		TenorMonths:   loan.TenorMonths,
		EffectiveDate: day,
		AnnualRate:    offer,
	})
}

// missingDays computes the anchor dates that still lack a rate row.
// Islamic loans only need the earliest anchor covered; conventional loans
// need every debit date plus every month start from the earliest debit
// through today (business-adjusted), because the monthly stepping rule
// re-resolves at month starts.
func (s *Scheduler) missingDays(ctx context.Context, bankID, loanID int64) ([]civil.Date, models.Loan, error) {
	bank, err := s.store.Bank(ctx, bankID)
	if err != nil {
		return nil, models.Loan{}, fmt.Errorf("failed to load bank %d: %w", bankID, err)
	}
	loan, err := s.store.Loan(ctx, bankID, loanID)
	if err != nil {
		return nil, models.Loan{}, fmt.Errorf("failed to load loan %d: %w", loanID, err)
	}

	debits, err := s.store.PrincipalDebitDates(ctx, bankID, loanID)
	if err != nil {
		return nil, models.Loan{}, fmt.Errorf("failed to load debit dates: %w", err)
	}
	if len(debits) == 0 {
		return nil, loan, nil
	}

	earliest := debits[0]
	for _, d := range debits[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}

	anchors := make(map[civil.Date]bool)
	if bank.Type == models.BankTypeIslamic {
		anchors[earliest] = true
	} else {
		for _, d := range debits {
			anchors[d] = true
		}
		for _, ms := range dates.MonthStarts(earliest, dates.LastBusinessDay(s.today())) {
			anchors[ms] = true
		}
	}

	days := make([]civil.Date, 0, len(anchors))
	for d := range anchors {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	existing, err := s.store.ExistingRateDates(ctx, bankID, loan.TenorMonths, days)
	if err != nil {
		return nil, models.Loan{}, fmt.Errorf("failed to check rate rows: %w", err)
	}

	missing := days[:0]
	for _, d := range days {
		if !existing[d] {
			missing = append(missing, d)
		}
	}
	return missing, loan, nil
}
