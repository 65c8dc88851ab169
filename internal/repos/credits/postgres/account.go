package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

// CreateAccount inserts the account unless one already exists for the user.
// The stored record is returned either way.
func (r *creditsRepo) CreateAccount(ctx context.Context, acc credits.Account) (credits.Account, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_accounts (user_id, balance, initial_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, acc.UserID, acc.Balance, acc.InitialBalance, acc.CreatedAt)
	if err != nil {
		return credits.Account{}, false, fmt.Errorf("insert account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return credits.Account{}, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := r.GetAccount(ctx, acc.UserID)
	if err != nil {
		return credits.Account{}, false, fmt.Errorf("read back account: %w", err)
	}

	return stored, affected == 1, nil
}

func (r *creditsRepo) GetAccount(ctx context.Context, userID uuid.UUID) (credits.Account, error) {
	var acc credits.Account

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, balance, initial_balance, version, created_at, updated_at
		FROM credit_accounts
		WHERE user_id = $1
	`, userID).Scan(
		&acc.UserID,
		&acc.Balance,
		&acc.InitialBalance,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credits.Account{}, credits.ErrAccountNotFound
		}

		return credits.Account{}, fmt.Errorf("get account: %w", err)
	}

	return acc, nil
}

// swapBalance is the compare-and-swap write: it only touches the row while
// the stored version still equals expected.
func (r *creditsRepo) swapBalance(ctx context.Context, tx *sql.Tx, m credits.Mutation) error {
	txn := m.Transaction

	res, err := tx.ExecContext(ctx, `
		UPDATE credit_accounts
		SET balance = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE user_id = $1
		  AND version = $2
	`, txn.UserID, m.ExpectedVersion, txn.ResultingBalance, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("swap balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 1 {
		return nil
	}

	err = r.exists(ctx, tx, txn.UserID)
	if err != nil {
		return err
	}

	return credits.ErrVersionConflict
}

func (r *creditsRepo) exists(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	var exists bool

	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM credit_accounts WHERE user_id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return credits.ErrAccountNotFound
	}

	return nil
}
