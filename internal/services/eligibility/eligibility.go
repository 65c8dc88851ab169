// Package eligibility decides whether a user may start a paid session and
// turns a session start into a ledger debit.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
	"github.com/fastprodman/creditledger/internal/services/ledger"
)

const (
	ReasonInsufficientCredits = "insufficient_credits"

	DefaultSessionCost = 1
)

// Ledger is the slice of *ledger.Ledger the service depends on.
type Ledger interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	Debit(ctx context.Context, req ledger.MutationRequest) (ledger.Result, error)
}

type Service struct {
	ledger      Ledger
	sessionCost int64
	log         *slog.Logger
}

type Option func(*Service)

func WithSessionCost(cost int64) Option {
	return func(s *Service) {
		if cost > 0 {
			s.sessionCost = cost
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:      l,
		sessionCost: DefaultSessionCost,
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SessionCost is the cost applied when a start request carries none.
func (s *Service) SessionCost() int64 {
	return s.sessionCost
}

type Verdict struct {
	Eligible        bool
	Reason          string
	Balance         int64
	RequiredCredits int64
}

// CheckEligibility is a pure read. Users without an account are reported as
// ineligible with a zero balance.
func (s *Service) CheckEligibility(ctx context.Context, userID uuid.UUID, required int64) (Verdict, error) {
	if required <= 0 {
		return Verdict{}, fmt.Errorf("check eligibility: %w", ledger.ErrInvalidAmount)
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil && !errors.Is(err, credits.ErrAccountNotFound) {
		return Verdict{}, fmt.Errorf("check eligibility: %w", err)
	}

	v := Verdict{
		Eligible:        balance >= required,
		Balance:         balance,
		RequiredCredits: required,
	}
	if !v.Eligible {
		v.Reason = ReasonInsufficientCredits
	}

	return v, nil
}

type StartRequest struct {
	UserID         uuid.UUID
	Cost           int64 // zero means the configured session cost
	ActorID        uuid.UUID
	IdempotencyKey string
}

// Outcome of a session start. Transaction is the zero value when Started is
// false.
type Outcome struct {
	Started         bool
	Balance         int64
	RequiredCredits int64
	Transaction     credits.Transaction
	Replayed        bool
}

// StartSession debits the session cost. Running out of credits is a business
// outcome, reported as Started=false with no error.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (Outcome, error) {
	cost := req.Cost
	if cost == 0 {
		cost = s.sessionCost
	}

	actor := req.ActorID
	if actor == uuid.Nil {
		actor = req.UserID
	}

	res, err := s.ledger.Debit(ctx, ledger.MutationRequest{
		UserID:         req.UserID,
		Amount:         cost,
		Reason:         ledger.ReasonSessionStart,
		ActorID:        actor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		var insufficient *ledger.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.log.InfoContext(ctx, "session start refused",
				"user_id", req.UserID, "balance", insufficient.Current, "required", cost)

			return Outcome{Balance: insufficient.Current, RequiredCredits: cost}, nil
		}

		if errors.Is(err, credits.ErrAccountNotFound) {
			s.log.InfoContext(ctx, "session start refused, no account", "user_id", req.UserID)

			return Outcome{RequiredCredits: cost}, nil
		}

		return Outcome{}, fmt.Errorf("start session: %w", err)
	}

	return Outcome{
		Started:         true,
		Balance:         res.NewBalance,
		RequiredCredits: cost,
		Transaction:     res.Transaction,
		Replayed:        res.Replayed,
	}, nil
}
