package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

const transactionColumns = `id, user_id, kind, amount, resulting_balance, account_version,
		       reason, actor_id, idempotency_key, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *creditsRepo) insertTransaction(ctx context.Context, tx *sql.Tx, txn credits.Transaction) (int64, error) {
	var id int64

	err := tx.QueryRowContext(ctx, `
		INSERT INTO credit_transactions
			(user_id, kind, amount, resulting_balance, account_version, reason, actor_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		txn.UserID,
		string(txn.Kind),
		txn.Amount,
		txn.ResultingBalance,
		txn.AccountVersion,
		txn.Reason,
		txn.ActorID,
		nullString(txn.IdempotencyKey),
		txn.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case constraintIdempotencyKey:
				return 0, credits.ErrDuplicateIdempotencyKey
			case constraintAccountVersion:
				return 0, credits.ErrVersionConflict
			}
		}

		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	return id, nil
}

func (r *creditsRepo) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]credits.Transaction, int, error) {
	var total int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM credit_transactions
		WHERE user_id = $1
	`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	items := make([]credits.Transaction, 0, limit)

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}

		items = append(items, txn)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}

	return items, total, nil
}

func (r *creditsRepo) FindByIdempotencyKey(
	ctx context.Context,
	userID uuid.UUID,
	key string,
) (credits.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE user_id = $1
		  AND idempotency_key = $2
	`, userID, key)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credits.Transaction{}, credits.ErrTransactionNotFound
		}

		return credits.Transaction{}, err
	}

	return txn, nil
}

func scanTransaction(row rowScanner) (credits.Transaction, error) {
	var (
		txn  credits.Transaction
		kind string
		key  sql.NullString
	)

	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&kind,
		&txn.Amount,
		&txn.ResultingBalance,
		&txn.AccountVersion,
		&txn.Reason,
		&txn.ActorID,
		&key,
		&txn.CreatedAt,
	)
	if err != nil {
		return credits.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	txn.Kind = credits.Kind(kind)
	txn.IdempotencyKey = key.String

	return txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
