package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/taimuradam/sugar-app/internal/backfill"
	"github.com/taimuradam/sugar-app/internal/config"
	"github.com/taimuradam/sugar-app/internal/ledger"
	"github.com/taimuradam/sugar-app/internal/models"
	"github.com/taimuradam/sugar-app/internal/repository"
)

// maxTransactionAmount bounds what the input boundary accepts; the core
// never sees malformed or absurd amounts.
var maxTransactionAmount = decimal.New(1, 12)

// Service handles business logic
type Service struct {
	repo      *repository.Repository
	engine    *ledger.Engine
	scheduler *backfill.Scheduler
	log       *logrus.Logger
	config    *config.Config
}

// NewService initializes a new service
func NewService(repo *repository.Repository, engine *ledger.Engine, scheduler *backfill.Scheduler, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{repo: repo, engine: engine, scheduler: scheduler, log: log, config: cfg}
}

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// CreateBank creates a new bank
func (s *Service) CreateBank(ctx context.Context, name, bankType string) (*models.Bank, error) {
	bt, err := models.ParseBankType(bankType)
	if err != nil {
		return nil, err
	}
	bank := &models.Bank{Name: name, Type: bt}
	if err := s.repo.CreateBank(ctx, bank); err != nil {
		return nil, err
	}
	s.log.Infof("Bank created: %s (%s)", bank.Name, bank.Type)
	return bank, nil
}

// ListBanks lists all banks
func (s *Service) ListBanks(ctx context.Context) ([]models.Bank, error) {
	return s.repo.ListBanks(ctx)
}

// CreateLoan creates a new loan under a bank
func (s *Service) CreateLoan(ctx context.Context, bankID int64, name string, tenorMonths int, additionalRate, placeholderRate decimal.Decimal) (*models.Loan, error) {
	if _, err := s.repo.Bank(ctx, bankID); err != nil {
		return nil, err
	}
	validTenor := false
	for _, t := range []int{1, 3, 6, 9, 12} {
		if tenorMonths == t {
			validTenor = true
			break
		}
	}
	if !validTenor {
		return nil, fmt.Errorf("unsupported tenor: %dm", tenorMonths)
	}

	loan := &models.Loan{
		BankID:          bankID,
		Name:            name,
		TenorMonths:     tenorMonths,
		AdditionalRate:  additionalRate,
		PlaceholderRate: placeholderRate,
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	s.log.Infof("Loan created: %s (bank %d, %dm tenor)", loan.Name, bankID, tenorMonths)
	return loan, nil
}

// ListLoans lists a bank's loans
func (s *Service) ListLoans(ctx context.Context, bankID int64) ([]models.Loan, error) {
	if _, err := s.repo.Bank(ctx, bankID); err != nil {
		return nil, err
	}
	return s.repo.ListLoans(ctx, bankID)
}

// CreateTransaction validates and records a transaction against a loan.
// Amount validation happens here, at the input boundary: the ledger core
// never has to special-case malformed values.
func (s *Service) CreateTransaction(ctx context.Context, bankID, loanID int64, date civil.Date, category string, amount decimal.Decimal, note string) (*models.Transaction, error) {
	if _, err := s.repo.Loan(ctx, bankID, loanID); err != nil {
		return nil, err
	}

	cat, err := models.ParseTxCategory(category)
	if err != nil {
		return nil, err
	}
	if !date.IsValid() {
		return nil, fmt.Errorf("invalid transaction date")
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("transaction amount must be non-zero")
	}
	if amount.Abs().GreaterThan(maxTransactionAmount) {
		return nil, fmt.Errorf("transaction amount out of range")
	}

	tx := &models.Transaction{
		BankID:   bankID,
		LoanID:   loanID,
		Date:     date,
		Category: cat,
		Amount:   amount,
		Note:     note,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"bank_id":  bankID,
		"loan_id":  loanID,
		"category": cat,
		"date":     date.String(),
	}).Info("transaction recorded")
	return tx, nil
}

// ListTransactions lists a loan's transactions
func (s *Service) ListTransactions(ctx context.Context, bankID, loanID int64) ([]models.Transaction, error) {
	if _, err := s.repo.Loan(ctx, bankID, loanID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, bankID, loanID)
}

// DeleteTransaction removes a transaction
func (s *Service) DeleteTransaction(ctx context.Context, bankID, loanID, txID int64) error {
	return s.repo.DeleteTransaction(ctx, bankID, loanID, txID)
}

// ListRates lists a bank's rate rows
func (s *Service) ListRates(ctx context.Context, bankID int64) ([]models.Rate, error) {
	if _, err := s.repo.Bank(ctx, bankID); err != nil {
		return nil, err
	}
	return s.repo.ListRates(ctx, bankID)
}

// AddRate records a manual rate observation
func (s *Service) AddRate(ctx context.Context, bankID int64, tenorMonths int, effectiveDate civil.Date, annualRate decimal.Decimal) (*models.Rate, error) {
	if _, err := s.repo.Bank(ctx, bankID); err != nil {
		return nil, err
	}
	rate := models.Rate{
		BankID:        bankID,
		TenorMonths:   tenorMonths,
		EffectiveDate: effectiveDate,
		AnnualRate:    annualRate,
	}
	if err := s.repo.UpsertRateIfAbsent(ctx, rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

// LoanLedger computes the ledger for [start, end] if the rate data is
// ready. When it is not, a backfill is triggered (unless already running)
// and the caller gets the status to report as pending instead of rows.
func (s *Service) LoanLedger(ctx context.Context, bankID, loanID int64, start, end civil.Date) ([]models.LedgerRow, *backfill.Status, error) {
	if _, err := s.repo.Loan(ctx, bankID, loanID); err != nil {
		return nil, nil, err
	}

	ready, err := s.scheduler.IsReady(ctx, bankID, loanID)
	if err != nil {
		return nil, nil, err
	}
	if !ready {
		st := s.scheduler.Status(bankID, loanID)
		if st.State != backfill.StateRunning {
			if st, err = s.scheduler.EnsureStarted(ctx, bankID, loanID); err != nil {
				return nil, nil, err
			}
		}
		return nil, &st, nil
	}

	rows, err := s.engine.Compute(ctx, bankID, loanID, start, end)
	if err != nil {
		return nil, nil, err
	}
	return rows, nil, nil
}

// BackfillStatus returns the backfill status for a loan
func (s *Service) BackfillStatus(bankID, loanID int64) backfill.Status {
	return s.scheduler.Status(bankID, loanID)
}

// StartBackfill starts a backfill for a loan unless one is running
func (s *Service) StartBackfill(ctx context.Context, bankID, loanID int64) (backfill.Status, error) {
	if _, err := s.repo.Loan(ctx, bankID, loanID); err != nil {
		return backfill.Status{}, err
	}
	return s.scheduler.EnsureStarted(ctx, bankID, loanID)
}
