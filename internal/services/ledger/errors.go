package ledger

import (
	"errors"
	"fmt"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

var (
	ErrAccountNotFound      = credits.ErrAccountNotFound
	ErrInsufficientCredits  = errors.New("ledger: insufficient credits")
	ErrInvalidAmount        = errors.New("ledger: amount must be a positive integer")
	ErrInvalidReason        = errors.New("ledger: reason is required")
	ErrInvalidPagination    = errors.New("ledger: invalid pagination")
	ErrBalanceOverflow      = errors.New("ledger: balance overflow")
	ErrBalanceLimitExceeded = errors.New("ledger: balance limit exceeded")
	ErrLedgerBusy           = errors.New("ledger: busy, retry later")
	ErrLedgerInconsistent   = errors.New("ledger: balance does not match transaction log")
	ErrIdempotencyKeyReused = errors.New("ledger: idempotency key reused for a different operation")
)

// InsufficientCreditsError carries what the caller needs to render an
// actionable refusal.
type InsufficientCreditsError struct {
	Current  int64
	Required int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("ledger: insufficient credits: balance %d, required %d", e.Current, e.Required)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
