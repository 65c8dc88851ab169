package credits

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

// txnRecord is the JSON shape stored in Redis. Integers travel as strings
// so Lua's cjson never rounds them through a double.
type txnRecord struct {
	ID               int64     `json:"id,string"`
	UserID           uuid.UUID `json:"user_id"`
	Kind             string    `json:"kind"`
	Amount           int64     `json:"amount,string"`
	ResultingBalance int64     `json:"resulting_balance,string"`
	AccountVersion   int64     `json:"account_version,string"`
	Reason           string    `json:"reason"`
	ActorID          uuid.UUID `json:"actor_id"`
	IdempotencyKey   string    `json:"idempotency_key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func encodeTransaction(txn credits.Transaction) (string, error) {
	b, err := json.Marshal(txnRecord{
		ID:               txn.ID,
		UserID:           txn.UserID,
		Kind:             string(txn.Kind),
		Amount:           txn.Amount,
		ResultingBalance: txn.ResultingBalance,
		AccountVersion:   txn.AccountVersion,
		Reason:           txn.Reason,
		ActorID:          txn.ActorID,
		IdempotencyKey:   txn.IdempotencyKey,
		CreatedAt:        txn.CreatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	return string(b), nil
}

func decodeTransaction(raw string) (credits.Transaction, error) {
	var rec txnRecord

	err := json.Unmarshal([]byte(raw), &rec)
	if err != nil {
		return credits.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}

	return credits.Transaction{
		ID:               rec.ID,
		UserID:           rec.UserID,
		Kind:             credits.Kind(rec.Kind),
		Amount:           rec.Amount,
		ResultingBalance: rec.ResultingBalance,
		AccountVersion:   rec.AccountVersion,
		Reason:           rec.Reason,
		ActorID:          rec.ActorID,
		IdempotencyKey:   rec.IdempotencyKey,
		CreatedAt:        rec.CreatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeAccount(userID uuid.UUID, fields map[string]string) (credits.Account, error) {
	acc := credits.Account{UserID: userID}

	var err error

	acc.Balance, err = strconv.ParseInt(fields["balance"], 10, 64)
	if err != nil {
		return credits.Account{}, fmt.Errorf("parse balance: %w", err)
	}

	acc.InitialBalance, err = strconv.ParseInt(fields["initial_balance"], 10, 64)
	if err != nil {
		return credits.Account{}, fmt.Errorf("parse initial_balance: %w", err)
	}

	acc.Version, err = strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return credits.Account{}, fmt.Errorf("parse version: %w", err)
	}

	acc.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return credits.Account{}, fmt.Errorf("parse created_at: %w", err)
	}

	acc.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return credits.Account{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return acc, nil
}
