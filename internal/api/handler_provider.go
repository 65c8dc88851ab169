package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fastprodman/creditledger/internal/services/eligibility"
	"github.com/fastprodman/creditledger/internal/services/ledger"
	"github.com/fastprodman/creditledger/internal/services/refund"
)

const maxBodyBytes = 1 << 20

// Services are the domain entry points the HTTP layer exposes.
type Services struct {
	Ledger      *ledger.Ledger
	Eligibility *eligibility.Service
	Refunds     *refund.Gateway
}

// HandlerProvider exposes the credit services as HTTP handlers.
type HandlerProvider struct {
	svc      Services
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(svc Services, log *slog.Logger) *HandlerProvider {
	if log == nil {
		log = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return &HandlerProvider{svc: svc, validate: v, log: log}
}

// --- Helpers ---

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		// headers are gone, nothing left but to log
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}

	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: details})
}

var errEmptyBody = errors.New("empty body")

// decodeBody reads a JSON body into dst, rejecting unknown fields. An empty
// body yields errEmptyBody.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}

		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", name)
	}

	return n, nil
}

// writeServiceError maps domain errors onto HTTP statuses. Mapping lives
// here and nowhere else.
func (h *HandlerProvider) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientCreditsError

	switch {
	case errors.Is(err, refund.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.As(err, &insufficient):
		writeError(w, http.StatusPaymentRequired, insufficientMessage(insufficient.Required, insufficient.Current))
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
	case errors.Is(err, ledger.ErrInvalidReason):
		writeError(w, http.StatusBadRequest, "reason is required")
	case errors.Is(err, ledger.ErrInvalidPagination):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1..%d and offset >= 0", ledger.MaxPageSize))
	case errors.Is(err, ledger.ErrIdempotencyKeyReused):
		writeError(w, http.StatusConflict, "idempotency key already used for a different request")
	case errors.Is(err, ledger.ErrBalanceLimitExceeded), errors.Is(err, ledger.ErrBalanceOverflow):
		writeError(w, http.StatusUnprocessableEntity, "balance limit exceeded")
	case errors.Is(err, ledger.ErrLedgerBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "ledger busy, retry later")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func insufficientMessage(required, current int64) string {
	return fmt.Sprintf(
		"Insufficient credits. You need %d credit(s) to start a session. Current balance: %d credits.",
		required, current,
	)
}
