package credits

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

func seed(t *testing.T, s *memoryStore, balance int64) credits.Account {
	t.Helper()

	now := time.Now().UTC()

	acc, created, err := s.CreateAccount(t.Context(), credits.Account{
		UserID: uuid.New(), Balance: balance, InitialBalance: balance, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, created)

	return acc
}

func mutation(acc credits.Account, key string) credits.Mutation {
	return credits.Mutation{
		ExpectedVersion: acc.Version,
		Transaction: credits.Transaction{
			UserID:           acc.UserID,
			Kind:             credits.KindDebit,
			Amount:           1,
			ResultingBalance: acc.Balance - 1,
			Reason:           "session_start",
			ActorID:          acc.UserID,
			IdempotencyKey:   key,
			CreatedAt:        time.Now().UTC(),
		},
	}
}

func TestMemoryStore_CreateAccountKeepsExisting(t *testing.T) {
	t.Parallel()

	s := New()
	acc := seed(t, s, 3)

	again, created, err := s.CreateAccount(t.Context(), credits.Account{UserID: acc.UserID, Balance: 50})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(3), again.Balance)
}

func TestMemoryStore_Commit(t *testing.T) {
	t.Parallel()

	s := New()
	acc := seed(t, s, 3)

	txn, err := s.Commit(t.Context(), mutation(acc, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), txn.ID)
	assert.Equal(t, int64(1), txn.AccountVersion)

	_, err = s.Commit(t.Context(), mutation(acc, ""))
	require.ErrorIs(t, err, credits.ErrVersionConflict)

	acc, err = s.GetAccount(t.Context(), acc.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Balance)

	_, err = s.Commit(t.Context(), mutation(acc, "a"))
	require.ErrorIs(t, err, credits.ErrDuplicateIdempotencyKey)

	_, err = s.Commit(t.Context(), mutation(credits.Account{UserID: uuid.New()}, ""))
	require.ErrorIs(t, err, credits.ErrAccountNotFound)

	items, total, err := s.ListTransactions(t.Context(), acc.UserID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	found, err := s.FindByIdempotencyKey(t.Context(), acc.UserID, "a")
	require.NoError(t, err)
	assert.Equal(t, txn, found)

	_, err = s.FindByIdempotencyKey(t.Context(), uuid.New(), "a")
	require.ErrorIs(t, err, credits.ErrTransactionNotFound)
}

func TestMemoryStore_ListTransactionsPaging(t *testing.T) {
	t.Parallel()

	s := New()
	acc := seed(t, s, 5)

	for range 5 {
		_, err := s.Commit(t.Context(), mutation(acc, ""))
		require.NoError(t, err)

		acc, err = s.GetAccount(t.Context(), acc.UserID)
		require.NoError(t, err)
	}

	tests := []struct {
		name          string
		limit, offset int
		wantVersions  []int64
	}{
		{name: "first_page", limit: 2, offset: 0, wantVersions: []int64{5, 4}},
		{name: "last_page", limit: 2, offset: 4, wantVersions: []int64{1}},
		{name: "past_end", limit: 2, offset: 9, wantVersions: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items, total, err := s.ListTransactions(t.Context(), acc.UserID, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, 5, total)

			var got []int64
			for _, item := range items {
				got = append(got, item.AccountVersion)
			}

			assert.Equal(t, tt.wantVersions, got)
		})
	}
}

func TestMemoryStore_ConcurrentCommitsSerialize(t *testing.T) {
	t.Parallel()

	s := New()
	acc := seed(t, s, 10)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.Commit(t.Context(), mutation(acc, ""))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, wins)

	got, err := s.GetAccount(t.Context(), acc.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := New().GetAccount(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
}
