// Package ledger owns every credit balance mutation. Debits and credits go
// through an optimistic compare-and-swap against the store, retried a
// bounded number of times, and each committed mutation is paired with an
// immutable transaction in the same atomic write.
package ledger

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

const (
	ReasonSessionStart = "session_start"

	DefaultMaxRetries = 5
	MaxPageSize       = 100
)

type Ledger struct {
	store           credits.Store
	now             func() time.Time
	log             *slog.Logger
	startingCredits int64
	maxBalance      int64
	maxRetries      int
}

type Option func(*Ledger)

// WithStartingCredits sets the grant a new account is provisioned with.
func WithStartingCredits(n int64) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.startingCredits = n
		}
	}
}

// WithMaxBalance caps the balance credits may raise an account to. Zero
// disables the cap.
func WithMaxBalance(n int64) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxBalance = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func New(store credits.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		now:        time.Now,
		log:        slog.Default(),
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// MutationRequest describes one debit or credit.
type MutationRequest struct {
	UserID         uuid.UUID
	Amount         int64
	Reason         string
	ActorID        uuid.UUID
	IdempotencyKey string
}

// Result is the authoritative post-mutation state. Replayed is set when an
// idempotency key matched an earlier transaction and nothing was written.
type Result struct {
	NewBalance  int64
	Transaction credits.Transaction
	Replayed    bool
}

type Page struct {
	Items  []credits.Transaction
	Total  int
	Limit  int
	Offset int
}
