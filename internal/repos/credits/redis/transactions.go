package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

func (r *creditsRepo) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]credits.Transaction, int, error) {
	total, err := r.rdb.ZCard(ctx, txnsKey(userID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	start := int64(offset)
	stop := int64(offset + limit - 1)

	members, err := r.rdb.ZRevRange(ctx, txnsKey(userID), start, stop).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	items := make([]credits.Transaction, 0, len(members))

	for _, m := range members {
		txn, err := decodeTransaction(m)
		if err != nil {
			return nil, 0, err
		}

		items = append(items, txn)
	}

	return items, int(total), nil
}

func (r *creditsRepo) FindByIdempotencyKey(
	ctx context.Context,
	userID uuid.UUID,
	key string,
) (credits.Transaction, error) {
	raw, err := r.rdb.HGet(ctx, idemKey(userID), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return credits.Transaction{}, credits.ErrTransactionNotFound
		}

		return credits.Transaction{}, fmt.Errorf("find by idempotency key: %w", err)
	}

	return decodeTransaction(raw)
}
