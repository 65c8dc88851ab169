package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

// Debit consumes credits. The balance check and the write are one atomic
// step: a refused debit leaves the account and its log untouched.
func (l *Ledger) Debit(ctx context.Context, req MutationRequest) (Result, error) {
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = ReasonSessionStart
	}

	res, err := l.mutate(ctx, credits.KindDebit, req)
	if err != nil {
		return Result{}, fmt.Errorf("debit: %w", err)
	}

	return res, nil
}

// Credit adds credits. A non-empty reason is mandatory.
func (l *Ledger) Credit(ctx context.Context, req MutationRequest) (Result, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return Result{}, fmt.Errorf("credit: %w", ErrInvalidReason)
	}

	res, err := l.mutate(ctx, credits.KindCredit, req)
	if err != nil {
		return Result{}, fmt.Errorf("credit: %w", err)
	}

	return res, nil
}

// mutate runs the read / compute / compare-and-swap loop:
//
// 1) Read the account (balance, version).
// 2) Compute the new balance, refusing before any write if it is invalid.
// 3) Commit {account, transaction} conditioned on the version read in 1.
// 4) On a version conflict start over, up to maxRetries attempts.
func (l *Ledger) mutate(ctx context.Context, kind credits.Kind, req MutationRequest) (Result, error) {
	if req.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	if req.IdempotencyKey != "" {
		res, found, err := l.replay(ctx, kind, req)
		if err != nil || found {
			return res, err
		}
	}

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		err := ctx.Err()
		if err != nil {
			return Result{}, err
		}

		acc, err := l.store.GetAccount(ctx, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("read account: %w", err)
		}

		next, err := l.nextBalance(kind, acc.Balance, req.Amount)
		if err != nil {
			return Result{}, err
		}

		at := l.now()
		if at.Before(acc.UpdatedAt) {
			at = acc.UpdatedAt
		}

		txn, err := l.store.Commit(ctx, credits.Mutation{
			ExpectedVersion: acc.Version,
			Transaction: credits.Transaction{
				UserID:           req.UserID,
				Kind:             kind,
				Amount:           req.Amount,
				ResultingBalance: next,
				Reason:           req.Reason,
				ActorID:          req.ActorID,
				IdempotencyKey:   req.IdempotencyKey,
				CreatedAt:        at,
			},
		})

		switch {
		case err == nil:
			l.log.InfoContext(ctx, "credit ledger mutation committed",
				"user_id", req.UserID,
				"kind", kind,
				"amount", req.Amount,
				"balance", txn.ResultingBalance,
				"version", txn.AccountVersion,
				"transaction_id", txn.ID,
				"actor_id", req.ActorID,
				"attempt", attempt,
			)

			return Result{NewBalance: txn.ResultingBalance, Transaction: txn}, nil

		case errors.Is(err, credits.ErrVersionConflict):
			l.log.DebugContext(ctx, "credit ledger version conflict, retrying",
				"user_id", req.UserID, "kind", kind, "attempt", attempt)

			continue

		case errors.Is(err, credits.ErrDuplicateIdempotencyKey):
			// lost a race against a concurrent request carrying the same key
			res, found, rerr := l.replay(ctx, kind, req)
			if rerr != nil {
				return Result{}, rerr
			}

			if !found {
				return Result{}, fmt.Errorf("resolve duplicate idempotency key: %w", err)
			}

			return res, nil

		default:
			return Result{}, fmt.Errorf("commit: %w", err)
		}
	}

	l.log.WarnContext(ctx, "credit ledger retry budget exhausted",
		"user_id", req.UserID, "kind", kind, "attempts", l.maxRetries)

	return Result{}, ErrLedgerBusy
}

func (l *Ledger) nextBalance(kind credits.Kind, balance, amount int64) (int64, error) {
	switch kind {
	case credits.KindDebit:
		if balance < amount {
			return 0, &InsufficientCreditsError{Current: balance, Required: amount}
		}

		return balance - amount, nil

	case credits.KindCredit:
		if balance > math.MaxInt64-amount {
			return 0, ErrBalanceOverflow
		}

		next := balance + amount
		if l.maxBalance > 0 && next > l.maxBalance {
			return 0, fmt.Errorf("%w: %d would exceed %d", ErrBalanceLimitExceeded, next, l.maxBalance)
		}

		return next, nil

	default:
		return 0, fmt.Errorf("unknown transaction kind %q", kind)
	}
}

// replay looks for an earlier transaction with the request's idempotency key.
func (l *Ledger) replay(ctx context.Context, kind credits.Kind, req MutationRequest) (Result, bool, error) {
	prior, err := l.store.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, credits.ErrTransactionNotFound) {
			return Result{}, false, nil
		}

		return Result{}, false, fmt.Errorf("find idempotency key: %w", err)
	}

	if prior.Kind != kind || prior.Amount != req.Amount {
		return Result{}, false, ErrIdempotencyKeyReused
	}

	acc, err := l.store.GetAccount(ctx, req.UserID)
	if err != nil {
		return Result{}, false, fmt.Errorf("read account: %w", err)
	}

	l.log.InfoContext(ctx, "credit ledger idempotent replay",
		"user_id", req.UserID, "kind", kind, "transaction_id", prior.ID)

	return Result{NewBalance: acc.Balance, Transaction: prior, Replayed: true}, true, nil
}
