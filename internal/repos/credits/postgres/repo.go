package credits

import (
	"database/sql"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

var _ credits.Store = (*creditsRepo)(nil)

const (
	constraintIdempotencyKey = "credit_transactions_user_idempotency_key"
	constraintAccountVersion = "credit_transactions_user_version_key"

	pgUniqueViolation = "23505"
)

type creditsRepo struct{ db *sql.DB }

func New(db *sql.DB) *creditsRepo {
	return &creditsRepo{db: db}
}
