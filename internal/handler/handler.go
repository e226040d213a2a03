package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/taimuradam/sugar-app/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateBank handles bank creation
func (h *Handler) CreateBank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"bank_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	bank, err := h.svc.CreateBank(r.Context(), req.Name, req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, bank)
}

// ListBanks handles bank listing
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.svc.ListBanks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, banks)
}

// CreateLoan handles loan creation under a bank
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	var req struct {
		Name            string          `json:"name"`
		TenorMonths     int             `json:"kibor_tenor_months"`
		AdditionalRate  decimal.Decimal `json:"additional_rate"`
		PlaceholderRate decimal.Decimal `json:"kibor_placeholder_rate_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	loan, err := h.svc.CreateLoan(r.Context(), bankID, req.Name, req.TenorMonths, req.AdditionalRate, req.PlaceholderRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ListLoans handles loan listing for a bank
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loans, err := h.svc.ListLoans(r.Context(), bankID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// CreateTransaction records a transaction against a loan
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	var req struct {
		Date     civil.Date      `json:"date"`
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Note     string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	tx, err := h.svc.CreateTransaction(r.Context(), bankID, loanID, req.Date, req.Category, req.Amount, req.Note)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions lists a loan's transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	txs, err := h.svc.ListTransactions(r.Context(), bankID, loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// DeleteTransaction removes a transaction
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	txID, err := pathID(r, "txID")
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteTransaction(r.Context(), bankID, loanID, txID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRates lists a bank's rate rows
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	rates, err := h.svc.ListRates(r.Context(), bankID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// AddRate records a manual rate observation
func (h *Handler) AddRate(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	var req struct {
		TenorMonths   int             `json:"tenor_months"`
		EffectiveDate civil.Date      `json:"effective_date"`
		AnnualRate    decimal.Decimal `json:"annual_rate_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rate, err := h.svc.AddRate(r.Context(), bankID, req.TenorMonths, req.EffectiveDate, req.AnnualRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

// Ledger computes a loan's ledger rows for a date range. While the rate
// backfill is still pending the handler answers 202 with the job status.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	start, err := civil.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start date", http.StatusBadRequest)
		return
	}
	end, err := civil.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "invalid end date", http.StatusBadRequest)
		return
	}

	rows, pending, err := h.svc.LoanLedger(r.Context(), bankID, loanID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if pending != nil {
		writeJSON(w, http.StatusAccepted, pending)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// BackfillStatus reports the backfill job status for a loan
func (h *Handler) BackfillStatus(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.BackfillStatus(bankID, loanID))
}

// StartBackfill starts a backfill job and returns immediately
func (h *Handler) StartBackfill(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		http.Error(w, "invalid bank id", http.StatusBadRequest)
		return
	}
	loanID, err := pathID(r, "loanID")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	st, err := h.svc.StartBackfill(r.Context(), bankID, loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
