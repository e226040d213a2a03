// Package memory is an in-memory implementation of the store interfaces
// the ledger engine and backfill scheduler consume. It mirrors the
// postgres repository's ordering and uniqueness semantics and is
// thread-safe, which makes it the store of choice for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/taimuradam/sugar-app/internal/models"
)

type rateKey struct {
	bankID int64
	tenor  int
	day    civil.Date
}

// Store holds all domain records behind one mutex.
type Store struct {
	mu           sync.Mutex
	banks        map[int64]models.Bank
	loans        map[int64]models.Loan
	transactions []models.Transaction
	rates        map[rateKey]models.Rate
	nextID       int64
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		banks:  make(map[int64]models.Bank),
		loans:  make(map[int64]models.Loan),
		rates:  make(map[rateKey]models.Rate),
		nextID: 1,
	}
}

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// AddBank stores a bank and returns it with an assigned id.
func (s *Store) AddBank(bank models.Bank) models.Bank {
	s.mu.Lock()
	defer s.mu.Unlock()
	bank.ID = s.id()
	s.banks[bank.ID] = bank
	return bank
}

// AddLoan stores a loan and returns it with an assigned id.
func (s *Store) AddLoan(loan models.Loan) models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.ID = s.id()
	s.loans[loan.ID] = loan
	return loan
}

// AddTransaction stores a transaction and returns it with an assigned id.
func (s *Store) AddTransaction(tx models.Transaction) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.id()
	s.transactions = append(s.transactions, tx)
	return tx
}

// RemoveLoan deletes a loan, for exercising mid-job disappearance.
func (s *Store) RemoveLoan(loanID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loans, loanID)
}

// AddRate stores a rate row unconditionally (test seeding).
func (s *Store) AddRate(rate models.Rate) models.Rate {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate.ID = s.id()
	s.rates[rateKey{rate.BankID, rate.TenorMonths, rate.EffectiveDate}] = rate
	return rate
}

func (s *Store) Bank(ctx context.Context, bankID int64) (models.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[bankID]
	if !ok {
		return models.Bank{}, fmt.Errorf("bank not found")
	}
	return b, nil
}

func (s *Store) Loan(ctx context.Context, bankID, loanID int64) (models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[loanID]
	if !ok || l.BankID != bankID {
		return models.Loan{}, fmt.Errorf("loan not found")
	}
	return l, nil
}

func (s *Store) TransactionsThrough(ctx context.Context, bankID, loanID int64, end civil.Date) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if t.BankID == bankID && t.LoanID == loanID && !t.Date.After(end) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RatesThrough(ctx context.Context, bankID int64, end civil.Date) ([]models.Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Rate
	for _, r := range s.rates {
		if r.BankID == bankID && !r.EffectiveDate.After(end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenorMonths != out[j].TenorMonths {
			return out[i].TenorMonths < out[j].TenorMonths
		}
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out, nil
}

func (s *Store) PrincipalDebitDates(ctx context.Context, bankID, loanID int64) ([]civil.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[civil.Date]bool)
	for _, t := range s.transactions {
		if t.BankID == bankID && t.LoanID == loanID &&
			t.Category == models.CategoryPrincipal && t.Amount.IsPositive() {
			seen[t.Date] = true
		}
	}
	days := make([]civil.Date, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func (s *Store) ExistingRateDates(ctx context.Context, bankID int64, tenorMonths int, days []civil.Date) (map[civil.Date]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	have := make(map[civil.Date]bool)
	for _, d := range days {
		if _, ok := s.rates[rateKey{bankID, tenorMonths, d}]; ok {
			have[d] = true
		}
	}
	return have, nil
}

func (s *Store) UpsertRateIfAbsent(ctx context.Context, rate models.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rateKey{rate.BankID, rate.TenorMonths, rate.EffectiveDate}
	if _, ok := s.rates[k]; ok {
		return nil
	}
	rate.ID = s.id()
	s.rates[k] = rate
	return nil
}
