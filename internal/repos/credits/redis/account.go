package credits

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

func (r *creditsRepo) CreateAccount(ctx context.Context, acc credits.Account) (credits.Account, bool, error) {
	created, err := r.rdb.Eval(ctx, createAccountScript,
		[]string{accountKey(acc.UserID)},
		strconv.FormatInt(acc.Balance, 10),
		strconv.FormatInt(acc.InitialBalance, 10),
		formatTime(acc.CreatedAt),
	).Int()
	if err != nil {
		return credits.Account{}, false, fmt.Errorf("create account: %w", err)
	}

	stored, err := r.GetAccount(ctx, acc.UserID)
	if err != nil {
		return credits.Account{}, false, fmt.Errorf("read back account: %w", err)
	}

	return stored, created == 1, nil
}

func (r *creditsRepo) GetAccount(ctx context.Context, userID uuid.UUID) (credits.Account, error) {
	fields, err := r.rdb.HGetAll(ctx, accountKey(userID)).Result()
	if err != nil {
		return credits.Account{}, fmt.Errorf("get account: %w", err)
	}

	if len(fields) == 0 {
		return credits.Account{}, credits.ErrAccountNotFound
	}

	acc, err := decodeAccount(userID, fields)
	if err != nil {
		return credits.Account{}, fmt.Errorf("get account: %w", err)
	}

	return acc, nil
}
