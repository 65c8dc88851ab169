package refund

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/creditledger/internal/auth"
	"github.com/fastprodman/creditledger/internal/infra/logging"
	"github.com/fastprodman/creditledger/internal/repos/credits"
	memstore "github.com/fastprodman/creditledger/internal/repos/credits/memory"
	"github.com/fastprodman/creditledger/internal/services/ledger"
)

type mockCrediter struct {
	mock.Mock
}

func (m *mockCrediter) Credit(ctx context.Context, req ledger.MutationRequest) (ledger.Result, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(ledger.Result), args.Error(1)
}

func TestGateway_Refund_Admin(t *testing.T) {
	t.Parallel()

	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}
	userID := uuid.New()

	m := new(mockCrediter)
	m.On("Credit", mock.Anything, ledger.MutationRequest{
		UserID:  userID,
		Amount:  5,
		Reason:  "goodwill",
		ActorID: admin.UserID,
	}).Return(ledger.Result{
		NewBalance:  5,
		Transaction: credits.Transaction{ID: 9, Kind: credits.KindCredit, Amount: 5, ResultingBalance: 5},
	}, nil).Once()

	g := New(m, logging.Discard())

	rcpt, err := g.Refund(t.Context(), admin, Request{UserID: userID, Amount: 5, Reason: "goodwill"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rcpt.Balance)
	assert.Equal(t, int64(9), rcpt.Transaction.ID)
	assert.Equal(t, "Successfully refunded 5 credits. New balance: 5 credits", rcpt.Message)

	m.AssertExpectations(t)
}

func TestGateway_Refund_NonAdmin(t *testing.T) {
	t.Parallel()

	m := new(mockCrediter)
	g := New(m, logging.Discard())

	callers := []auth.Identity{
		{UserID: uuid.New(), Role: auth.RoleUser},
		{},
	}

	for _, caller := range callers {
		// invalid amount must not leak past the role check
		_, err := g.Refund(t.Context(), caller, Request{UserID: uuid.New(), Amount: -1})
		require.ErrorIs(t, err, ErrForbidden)
	}

	m.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestGateway_Refund_LedgerErrors(t *testing.T) {
	t.Parallel()

	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}

	m := new(mockCrediter)
	m.On("Credit", mock.Anything, mock.Anything).Return(ledger.Result{}, ledger.ErrInvalidReason).Once()

	g := New(m, logging.Discard())

	_, err := g.Refund(t.Context(), admin, Request{UserID: uuid.New(), Amount: 1})
	require.ErrorIs(t, err, ledger.ErrInvalidReason)

	m.AssertExpectations(t)
}

func TestGateway_Refund_WithLedger(t *testing.T) {
	t.Parallel()

	l := ledger.New(memstore.New(), ledger.WithLogger(logging.Discard()))
	g := New(l, logging.Discard())

	userID := uuid.New()

	_, err := l.OpenAccount(t.Context(), userID)
	require.NoError(t, err)

	_, err = g.Refund(t.Context(), auth.Identity{UserID: userID, Role: auth.RoleUser},
		Request{UserID: userID, Amount: 5, Reason: "goodwill"})
	require.ErrorIs(t, err, ErrForbidden)

	page, err := l.ListTransactions(t.Context(), userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}

	rcpt, err := g.Refund(t.Context(), admin, Request{UserID: userID, Amount: 5, Reason: "goodwill"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rcpt.Balance)
	assert.Equal(t, credits.KindCredit, rcpt.Transaction.Kind)
	assert.Equal(t, int64(5), rcpt.Transaction.ResultingBalance)
	assert.Equal(t, admin.UserID, rcpt.Transaction.ActorID)

	_, err = g.Refund(t.Context(), admin, Request{UserID: uuid.New(), Amount: 5, Reason: "goodwill"})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
