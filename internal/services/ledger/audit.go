package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

const auditAttempts = 3

// AuditReport is the outcome of replaying an account's transaction log.
type AuditReport struct {
	UserID           uuid.UUID
	InitialBalance   int64
	Balance          int64
	ReplayedBalance  int64
	Version          int64
	TransactionCount int
	TotalCredited    int64
	TotalDebited     int64
	Consistent       bool
	Problems         []string
}

// Audit folds the full transaction log oldest-first and checks it against
// the account record. A report is returned alongside ErrLedgerInconsistent
// when they disagree.
func (l *Ledger) Audit(ctx context.Context, userID uuid.UUID) (AuditReport, error) {
	for attempt := 1; attempt <= auditAttempts; attempt++ {
		acc, err := l.store.GetAccount(ctx, userID)
		if err != nil {
			return AuditReport{}, fmt.Errorf("audit: %w", err)
		}

		log, err := l.fullLog(ctx, userID)
		if err != nil {
			return AuditReport{}, fmt.Errorf("audit: %w", err)
		}

		after, err := l.store.GetAccount(ctx, userID)
		if err != nil {
			return AuditReport{}, fmt.Errorf("audit: %w", err)
		}

		if after.Version != acc.Version {
			// account moved while the log was being read
			continue
		}

		report := replayLog(acc, log)
		if !report.Consistent {
			l.log.ErrorContext(ctx, "ledger inconsistency",
				"user_id", userID,
				"balance", report.Balance,
				"replayed_balance", report.ReplayedBalance,
				"version", report.Version,
				"transactions", report.TransactionCount,
				"problems", report.Problems,
			)

			return report, ErrLedgerInconsistent
		}

		return report, nil
	}

	return AuditReport{}, fmt.Errorf("audit: %w", ErrLedgerBusy)
}

// fullLog returns every transaction of the account, oldest first.
func (l *Ledger) fullLog(ctx context.Context, userID uuid.UUID) ([]credits.Transaction, error) {
	var newestFirst []credits.Transaction

	for offset := 0; ; offset += MaxPageSize {
		items, total, err := l.store.ListTransactions(ctx, userID, MaxPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}

		newestFirst = append(newestFirst, items...)

		if len(items) < MaxPageSize || len(newestFirst) >= total {
			break
		}
	}

	out := make([]credits.Transaction, len(newestFirst))
	for i, txn := range newestFirst {
		out[len(newestFirst)-1-i] = txn
	}

	return out, nil
}

func replayLog(acc credits.Account, log []credits.Transaction) AuditReport {
	r := AuditReport{
		UserID:           acc.UserID,
		InitialBalance:   acc.InitialBalance,
		Balance:          acc.Balance,
		Version:          acc.Version,
		TransactionCount: len(log),
	}

	running := acc.InitialBalance

	for i, txn := range log {
		want := int64(i + 1)
		if txn.AccountVersion != want {
			r.Problems = append(r.Problems,
				fmt.Sprintf("transaction %d: account version %d, expected %d", txn.ID, txn.AccountVersion, want))
		}

		switch txn.Kind {
		case credits.KindCredit:
			running += txn.Amount
			r.TotalCredited += txn.Amount
		case credits.KindDebit:
			running -= txn.Amount
			r.TotalDebited += txn.Amount
		default:
			r.Problems = append(r.Problems, fmt.Sprintf("transaction %d: unknown kind %q", txn.ID, txn.Kind))
		}

		if txn.ResultingBalance != running {
			r.Problems = append(r.Problems,
				fmt.Sprintf("transaction %d: resulting balance %d, replayed %d", txn.ID, txn.ResultingBalance, running))
		}

		if running < 0 {
			r.Problems = append(r.Problems, fmt.Sprintf("transaction %d: negative balance %d", txn.ID, running))
		}
	}

	r.ReplayedBalance = running

	if int64(len(log)) != acc.Version {
		r.Problems = append(r.Problems,
			fmt.Sprintf("account version %d but %d transactions", acc.Version, len(log)))
	}

	if running != acc.Balance {
		r.Problems = append(r.Problems,
			fmt.Sprintf("account balance %d but log replays to %d", acc.Balance, running))
	}

	r.Consistent = len(r.Problems) == 0

	return r
}
