package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/taimuradam/sugar-app/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// toSQLDate converts a civil day to the midnight timestamp lib/pq stores
// for DATE columns.
func toSQLDate(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM bank.users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateBank creates a new bank in the database
func (r *Repository) CreateBank(ctx context.Context, bank *models.Bank) error {
	query := `
		INSERT INTO bank.banks (name, bank_type, created_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, bank.Name, string(bank.Type)).
		Scan(&bank.ID, &bank.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bank: %w", err)
	}
	return nil
}

// ListBanks retrieves all banks
func (r *Repository) ListBanks(ctx context.Context) ([]models.Bank, error) {
	query := `
		SELECT id, name, bank_type, created_at
		FROM bank.banks
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list banks: %w", err)
	}
	defer rows.Close()

	var banks []models.Bank
	for rows.Next() {
		var b models.Bank
		var bankType string
		if err := rows.Scan(&b.ID, &b.Name, &bankType, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank: %w", err)
		}
		if b.Type, err = models.ParseBankType(bankType); err != nil {
			return nil, fmt.Errorf("bank %d: %w", b.ID, err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// Bank retrieves one bank by id
func (r *Repository) Bank(ctx context.Context, bankID int64) (models.Bank, error) {
	var b models.Bank
	var bankType string
	query := `
		SELECT id, name, bank_type, created_at
		FROM bank.banks
		WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, bankID).
		Scan(&b.ID, &b.Name, &bankType, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Bank{}, fmt.Errorf("bank not found")
	}
	if err != nil {
		return models.Bank{}, fmt.Errorf("failed to find bank: %w", err)
	}
	if b.Type, err = models.ParseBankType(bankType); err != nil {
		return models.Bank{}, fmt.Errorf("bank %d: %w", b.ID, err)
	}
	return b, nil
}

// CreateLoan creates a new loan in the database
func (r *Repository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO bank.loans (bank_id, name, kibor_tenor_months, additional_rate, kibor_placeholder_rate_percent, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		loan.BankID, loan.Name, loan.TenorMonths, loan.AdditionalRate, loan.PlaceholderRate).
		Scan(&loan.ID, &loan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// ListLoans retrieves all loans of a bank
func (r *Repository) ListLoans(ctx context.Context, bankID int64) ([]models.Loan, error) {
	query := `
		SELECT id, bank_id, name, kibor_tenor_months, COALESCE(additional_rate, 0), kibor_placeholder_rate_percent, created_at
		FROM bank.loans
		WHERE bank_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		var l models.Loan
		if err := rows.Scan(&l.ID, &l.BankID, &l.Name, &l.TenorMonths, &l.AdditionalRate, &l.PlaceholderRate, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// Loan retrieves one loan by id, scoped to its bank
func (r *Repository) Loan(ctx context.Context, bankID, loanID int64) (models.Loan, error) {
	var l models.Loan
	query := `
		SELECT id, bank_id, name, kibor_tenor_months, COALESCE(additional_rate, 0), kibor_placeholder_rate_percent, created_at
		FROM bank.loans
		WHERE id = $1 AND bank_id = $2`
	err := r.db.QueryRowContext(ctx, query, loanID, bankID).
		Scan(&l.ID, &l.BankID, &l.Name, &l.TenorMonths, &l.AdditionalRate, &l.PlaceholderRate, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Loan{}, fmt.Errorf("loan not found")
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to find loan: %w", err)
	}
	return l, nil
}

// CreateTransaction creates a new transaction in the database
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO bank.transactions (bank_id, loan_id, date, category, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		tx.BankID, tx.LoanID, toSQLDate(tx.Date), string(tx.Category), tx.Amount, tx.Note).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// DeleteTransaction removes one transaction, scoped to its loan
func (r *Repository) DeleteTransaction(ctx context.Context, bankID, loanID, txID int64) error {
	query := `
		DELETE FROM bank.transactions
		WHERE id = $1 AND bank_id = $2 AND loan_id = $3`
	res, err := r.db.ExecContext(ctx, query, txID, bankID, loanID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction not found")
	}
	return nil
}

// TransactionsThrough retrieves the loan's transactions dated on or
// before end, ordered by date then id.
func (r *Repository) TransactionsThrough(ctx context.Context, bankID, loanID int64, end civil.Date) ([]models.Transaction, error) {
	query := `
		SELECT id, bank_id, loan_id, date, category, amount, COALESCE(note, ''), created_at
		FROM bank.transactions
		WHERE bank_id = $1 AND loan_id = $2 AND date <= $3
		ORDER BY date, id`
	rows, err := r.db.QueryContext(ctx, query, bankID, loanID, toSQLDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactions retrieves all transactions of a loan
func (r *Repository) ListTransactions(ctx context.Context, bankID, loanID int64) ([]models.Transaction, error) {
	query := `
		SELECT id, bank_id, loan_id, date, category, amount, COALESCE(note, ''), created_at
		FROM bank.transactions
		WHERE bank_id = $1 AND loan_id = $2
		ORDER BY date, id`
	rows, err := r.db.QueryContext(ctx, query, bankID, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var day time.Time
		var category string
		if err := rows.Scan(&t.ID, &t.BankID, &t.LoanID, &day, &category, &t.Amount, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Date = civil.DateOf(day)
		var err error
		if t.Category, err = models.ParseTxCategory(category); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
