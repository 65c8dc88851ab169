package credits

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/creditledger/internal/infra/pgutils"
	"github.com/fastprodman/creditledger/internal/repos/credits"
)

// Commit runs the full mutation in a single DB transaction:
//
// 1) CAS-update the account row (0 rows -> conflict or not found).
// 2) Append the transaction (unique violations roll back step 1).
func (r *creditsRepo) Commit(ctx context.Context, m credits.Mutation) (credits.Transaction, error) {
	txn := m.Transaction
	txn.AccountVersion = m.ExpectedVersion + 1

	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := r.swapBalance(ctx, tx, m)
		if err != nil {
			return err
		}

		txn.ID, err = r.insertTransaction(ctx, tx, txn)
		if err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return credits.Transaction{}, fmt.Errorf("commit mutation: %w", err)
	}

	return txn, nil
}
