package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/auth"
	"github.com/fastprodman/creditledger/internal/repos/credits"
	"github.com/fastprodman/creditledger/internal/services/eligibility"
	"github.com/fastprodman/creditledger/internal/services/ledger"
	"github.com/fastprodman/creditledger/internal/services/refund"
)

const (
	defaultPageLimit       = 20
	idempotencyKeyHeader   = "Idempotency-Key"
	defaultRequiredCredits = 1
)

type transactionDTO struct {
	ID               int64     `json:"id"`
	Kind             string    `json:"kind"`
	Amount           int64     `json:"amount"`
	ResultingBalance int64     `json:"resultingBalance"`
	AccountVersion   int64     `json:"accountVersion"`
	Reason           string    `json:"reason"`
	ActorID          uuid.UUID `json:"actorId"`
	IdempotencyKey   string    `json:"idempotencyKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toTransactionDTO(t credits.Transaction) transactionDTO {
	return transactionDTO{
		ID:               t.ID,
		Kind:             string(t.Kind),
		Amount:           t.Amount,
		ResultingBalance: t.ResultingBalance,
		AccountVersion:   t.AccountVersion,
		Reason:           t.Reason,
		ActorID:          t.ActorID,
		IdempotencyKey:   t.IdempotencyKey,
		CreatedAt:        t.CreatedAt,
	}
}

type balanceResponse struct {
	Credits int64  `json:"credits"`
	Message string `json:"message"`
}

type transactionsResponse struct {
	Transactions []transactionDTO `json:"transactions"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
}

type eligibilityResponse struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason,omitempty"`
	Credits         int64  `json:"credits"`
	RequiredCredits int64  `json:"requiredCredits"`
}

type startSessionRequest struct {
	Cost           int64  `json:"cost" validate:"gte=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=128,printascii"`
}

type startSessionResponse struct {
	Started         bool            `json:"started"`
	Balance         int64           `json:"balance"`
	RequiredCredits int64           `json:"requiredCredits"`
	Transaction     *transactionDTO `json:"transaction,omitempty"`
	Replayed        bool            `json:"replayed,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type refundRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type refundResponse struct {
	Credits     int64          `json:"credits"`
	Message     string         `json:"message"`
	Transaction transactionDTO `json:"transaction"`
}

type auditResponse struct {
	UserID           uuid.UUID `json:"userId"`
	Consistent       bool      `json:"consistent"`
	InitialBalance   int64     `json:"initialBalance"`
	Balance          int64     `json:"balance"`
	ReplayedBalance  int64     `json:"replayedBalance"`
	Version          int64     `json:"version"`
	TransactionCount int       `json:"transactionCount"`
	TotalCredited    int64     `json:"totalCredited"`
	TotalDebited     int64     `json:"totalDebited"`
	Problems         []string  `json:"problems,omitempty"`
}

func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())

	return id
}

// --- Handlers ---

// GetBalanceHandler handles GET /v1/credits/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	bal, err := h.svc.Ledger.GetBalance(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Credits: bal,
		Message: fmt.Sprintf("You have %d credits remaining", bal),
	})
}

// ListTransactionsHandler handles GET /v1/credits/transactions?limit=&offset=
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.svc.Ledger.ListTransactions(r.Context(), caller(r).UserID, int(limit), int(offset))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]transactionDTO, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, toTransactionDTO(t))
	}

	writeJSON(w, http.StatusOK, transactionsResponse{
		Transactions: items,
		Total:        page.Total,
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
}

// EligibilityHandler handles GET /v1/credits/eligibility?requiredCredits=
func (h *HandlerProvider) EligibilityHandler(w http.ResponseWriter, r *http.Request) {
	required, err := queryInt(r, "requiredCredits", defaultRequiredCredits)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.svc.Eligibility.CheckEligibility(r.Context(), caller(r).UserID, required)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, eligibilityResponse{
		Eligible:        v.Eligible,
		Reason:          v.Reason,
		Credits:         v.Balance,
		RequiredCredits: v.RequiredCredits,
	})
}

// StartSessionHandler handles POST /v1/sessions/start
func (h *HandlerProvider) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest

	err := decodeBody(w, r, &req)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	}

	err = h.validate.Struct(&req)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	id := caller(r)

	out, err := h.svc.Eligibility.StartSession(r.Context(), eligibility.StartRequest{
		UserID:         id.UserID,
		Cost:           req.Cost,
		ActorID:        id.UserID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !out.Started {
		writeJSON(w, http.StatusPaymentRequired, startSessionResponse{
			Balance:         out.Balance,
			RequiredCredits: out.RequiredCredits,
			Error:           insufficientMessage(out.RequiredCredits, out.Balance),
		})

		return
	}

	txn := toTransactionDTO(out.Transaction)

	writeJSON(w, http.StatusOK, startSessionResponse{
		Started:         true,
		Balance:         out.Balance,
		RequiredCredits: out.RequiredCredits,
		Transaction:     &txn,
		Replayed:        out.Replayed,
	})
}

// RefundHandler handles POST /v1/admin/refunds
func (h *HandlerProvider) RefundHandler(w http.ResponseWriter, r *http.Request) {
	var req refundRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.validate.Struct(&req)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	rcpt, err := h.svc.Refunds.Refund(r.Context(), caller(r), refund.Request{
		UserID: userID,
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refundResponse{
		Credits:     rcpt.Balance,
		Message:     rcpt.Message,
		Transaction: toTransactionDTO(rcpt.Transaction),
	})
}

// AuditHandler handles GET /v1/admin/accounts/{userId}/audit
func (h *HandlerProvider) AuditHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	report, err := h.svc.Ledger.Audit(r.Context(), userID)
	if err != nil && !errors.Is(err, ledger.ErrLedgerInconsistent) {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, auditResponse{
		UserID:           report.UserID,
		Consistent:       report.Consistent,
		InitialBalance:   report.InitialBalance,
		Balance:          report.Balance,
		ReplayedBalance:  report.ReplayedBalance,
		Version:          report.Version,
		TransactionCount: report.TransactionCount,
		TotalCredited:    report.TotalCredited,
		TotalDebited:     report.TotalDebited,
		Problems:         report.Problems,
	})
}
