package credits

import (
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/fastprodman/creditledger/internal/repos/credits"
)

var _ credits.Store = (*creditsRepo)(nil)

const keyPrefix = "credits"

// Key layout (single-node Redis; the global sequence key spans accounts):
//
//	credits:account:<uid>  hash  balance, initial_balance, version, created_at, updated_at
//	credits:txns:<uid>     zset  score = transaction id, member = JSON record
//	credits:idem:<uid>     hash  idempotency key -> JSON record
//	credits:txn_seq        string global transaction id counter
type creditsRepo struct{ rdb redis.Cmdable }

func New(rdb redis.Cmdable) *creditsRepo {
	return &creditsRepo{rdb: rdb}
}

func accountKey(userID uuid.UUID) string { return keyPrefix + ":account:" + userID.String() }
func txnsKey(userID uuid.UUID) string    { return keyPrefix + ":txns:" + userID.String() }
func idemKey(userID uuid.UUID) string    { return keyPrefix + ":idem:" + userID.String() }
func seqKey() string                     { return keyPrefix + ":txn_seq" }
