package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound         = errors.New("credits: account not found")
	ErrTransactionNotFound     = errors.New("credits: transaction not found")
	ErrVersionConflict         = errors.New("credits: version conflict")
	ErrDuplicateIdempotencyKey = errors.New("credits: duplicate idempotency key")
)

type Kind string

const (
	KindDebit  Kind = "debit"
	KindCredit Kind = "credit"
)

// Account is the per-user balance record. Version counts committed
// mutations and doubles as the compare-and-swap token.
type Account struct {
	UserID         uuid.UUID
	Balance        int64
	InitialBalance int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an immutable log entry. ID is assigned by the store.
type Transaction struct {
	ID               int64
	UserID           uuid.UUID
	Kind             Kind
	Amount           int64
	ResultingBalance int64
	AccountVersion   int64
	Reason           string
	ActorID          uuid.UUID
	IdempotencyKey   string
	CreatedAt        time.Time
}

// Mutation is a conditional account write paired with the transaction that
// records it. The store sets balance to Transaction.ResultingBalance and
// version to ExpectedVersion+1 only if the stored version still equals
// ExpectedVersion.
type Mutation struct {
	ExpectedVersion int64
	Transaction     Transaction
}

// Store persists accounts and their transaction logs.
//
// Commit must apply the account update and the transaction append as one
// atomic step. ListTransactions returns newest-first by ID.
type Store interface {
	CreateAccount(ctx context.Context, acc Account) (Account, bool, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (Account, error)
	Commit(ctx context.Context, m Mutation) (Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (Transaction, error)
}
