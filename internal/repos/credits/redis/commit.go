package credits

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

func (r *creditsRepo) Commit(ctx context.Context, m credits.Mutation) (credits.Transaction, error) {
	txn := m.Transaction
	txn.ID = 0
	txn.AccountVersion = m.ExpectedVersion + 1

	record, err := encodeTransaction(txn)
	if err != nil {
		return credits.Transaction{}, err
	}

	res, err := r.rdb.Eval(ctx, commitScript,
		[]string{accountKey(txn.UserID), txnsKey(txn.UserID), idemKey(txn.UserID), seqKey()},
		strconv.FormatInt(m.ExpectedVersion, 10),
		strconv.FormatInt(txn.ResultingBalance, 10),
		formatTime(txn.CreatedAt),
		txn.IdempotencyKey,
		record,
	).Slice()
	if err != nil {
		return credits.Transaction{}, fmt.Errorf("commit mutation: %w", err)
	}

	if len(res) == 0 {
		return credits.Transaction{}, fmt.Errorf("commit mutation: empty script reply")
	}

	status, _ := res[0].(string)
	switch status {
	case commitNotFound:
		return credits.Transaction{}, credits.ErrAccountNotFound
	case commitConflict:
		return credits.Transaction{}, credits.ErrVersionConflict
	case commitDuplicate:
		return credits.Transaction{}, credits.ErrDuplicateIdempotencyKey
	case commitOK:
	default:
		return credits.Transaction{}, fmt.Errorf("commit mutation: unexpected status %q", status)
	}

	if len(res) < 2 {
		return credits.Transaction{}, fmt.Errorf("commit mutation: missing record in reply")
	}

	encoded, _ := res[1].(string)

	committed, err := decodeTransaction(encoded)
	if err != nil {
		return credits.Transaction{}, fmt.Errorf("commit mutation: %w", err)
	}

	return committed, nil
}
