package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

// OpenAccount provisions the user's account with the starting grant if it
// does not exist yet. Calling it again is a no-op read.
func (l *Ledger) OpenAccount(ctx context.Context, userID uuid.UUID) (credits.Account, error) {
	now := l.now()

	acc, created, err := l.store.CreateAccount(ctx, credits.Account{
		UserID:         userID,
		Balance:        l.startingCredits,
		InitialBalance: l.startingCredits,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return credits.Account{}, fmt.Errorf("open account: %w", err)
	}

	if created {
		l.log.InfoContext(ctx, "credit account provisioned",
			"user_id", userID, "starting_credits", acc.InitialBalance)
	}

	return acc, nil
}

// GetBalance returns the current balance. Accounts that were never
// provisioned yield ErrAccountNotFound.
func (l *Ledger) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	acc, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return acc.Balance, nil
}

// ListTransactions pages through the account's log, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) (Page, error) {
	if limit < 1 || limit > MaxPageSize || offset < 0 {
		return Page{}, fmt.Errorf("%w: limit must be 1..%d and offset >= 0 (got limit=%d offset=%d)",
			ErrInvalidPagination, MaxPageSize, limit, offset)
	}

	items, total, err := l.store.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}

	return Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
