// Package refund is the administrator-only entry point for crediting an
// account.
package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/auth"
	"github.com/fastprodman/creditledger/internal/repos/credits"
	"github.com/fastprodman/creditledger/internal/services/ledger"
)

var ErrForbidden = errors.New("refund: caller is not an administrator")

type Crediter interface {
	Credit(ctx context.Context, req ledger.MutationRequest) (ledger.Result, error)
}

type Gateway struct {
	ledger Crediter
	log    *slog.Logger
}

func New(l Crediter, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{ledger: l, log: log}
}

type Request struct {
	UserID uuid.UUID
	Amount int64
	Reason string
}

type Receipt struct {
	Balance     int64
	Transaction credits.Transaction
	Message     string
}

// Refund credits the account on behalf of caller. The role check runs before
// anything else so a refused caller learns nothing about the target account.
func (g *Gateway) Refund(ctx context.Context, caller auth.Identity, req Request) (Receipt, error) {
	if !caller.IsAdmin() {
		g.log.WarnContext(ctx, "refund refused", "caller_id", caller.UserID, "role", caller.Role)

		return Receipt{}, ErrForbidden
	}

	res, err := g.ledger.Credit(ctx, ledger.MutationRequest{
		UserID:  req.UserID,
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: caller.UserID,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("refund: %w", err)
	}

	g.log.InfoContext(ctx, "refund granted",
		"user_id", req.UserID, "admin_id", caller.UserID, "amount", req.Amount, "balance", res.NewBalance)

	return Receipt{
		Balance:     res.NewBalance,
		Transaction: res.Transaction,
		Message:     fmt.Sprintf("Successfully refunded %d credits. New balance: %d credits", req.Amount, res.NewBalance),
	}, nil
}
