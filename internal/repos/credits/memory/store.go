package credits

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

var _ credits.Store = (*memoryStore)(nil)

type idemKey struct {
	userID uuid.UUID
	key    string
}

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]credits.Account
	txns     map[uuid.UUID][]credits.Transaction // oldest-first
	idem     map[idemKey]credits.Transaction
	seq      int64
}

func New() *memoryStore {
	return &memoryStore{
		accounts: make(map[uuid.UUID]credits.Account),
		txns:     make(map[uuid.UUID][]credits.Transaction),
		idem:     make(map[idemKey]credits.Transaction),
	}
}

func (s *memoryStore) CreateAccount(ctx context.Context, acc credits.Account) (credits.Account, bool, error) {
	err := ctx.Err()
	if err != nil {
		return credits.Account{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[acc.UserID]
	if ok {
		return existing, false, nil
	}

	s.accounts[acc.UserID] = acc

	return acc, true, nil
}

func (s *memoryStore) GetAccount(ctx context.Context, userID uuid.UUID) (credits.Account, error) {
	err := ctx.Err()
	if err != nil {
		return credits.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return credits.Account{}, credits.ErrAccountNotFound
	}

	return acc, nil
}

func (s *memoryStore) Commit(ctx context.Context, m credits.Mutation) (credits.Transaction, error) {
	err := ctx.Err()
	if err != nil {
		return credits.Transaction{}, err
	}

	txn := m.Transaction

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[txn.UserID]
	if !ok {
		return credits.Transaction{}, credits.ErrAccountNotFound
	}

	if acc.Version != m.ExpectedVersion {
		return credits.Transaction{}, credits.ErrVersionConflict
	}

	if txn.IdempotencyKey != "" {
		_, dup := s.idem[idemKey{userID: txn.UserID, key: txn.IdempotencyKey}]
		if dup {
			return credits.Transaction{}, credits.ErrDuplicateIdempotencyKey
		}
	}

	s.seq++
	txn.ID = s.seq
	txn.AccountVersion = m.ExpectedVersion + 1

	acc.Balance = txn.ResultingBalance
	acc.Version = txn.AccountVersion
	acc.UpdatedAt = txn.CreatedAt

	s.accounts[txn.UserID] = acc
	s.txns[txn.UserID] = append(s.txns[txn.UserID], txn)

	if txn.IdempotencyKey != "" {
		s.idem[idemKey{userID: txn.UserID, key: txn.IdempotencyKey}] = txn
	}

	return txn, nil
}

func (s *memoryStore) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]credits.Transaction, int, error) {
	err := ctx.Err()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.txns[userID]
	total := len(log)

	items := make([]credits.Transaction, 0, limit)
	// walk backwards for newest-first
	for i := total - 1 - offset; i >= 0 && len(items) < limit; i-- {
		items = append(items, log[i])
	}

	return items, total, nil
}

func (s *memoryStore) FindByIdempotencyKey(
	ctx context.Context,
	userID uuid.UUID,
	key string,
) (credits.Transaction, error) {
	err := ctx.Err()
	if err != nil {
		return credits.Transaction{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.idem[idemKey{userID: userID, key: key}]
	if !ok {
		return credits.Transaction{}, credits.ErrTransactionNotFound
	}

	return txn, nil
}

// Overwrite replaces an account record without touching the log. It exists
// for tests that need to simulate drift between balance and history.
func (s *memoryStore) Overwrite(acc credits.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acc.UserID] = acc
}
