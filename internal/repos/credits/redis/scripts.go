package credits

// createAccountScript inserts the account hash only when absent.
//
// KEYS[1] account hash
// ARGV    balance, initial_balance, created_at
const createAccountScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'balance', ARGV[1],
  'initial_balance', ARGV[2],
  'version', '0',
  'created_at', ARGV[3],
  'updated_at', ARGV[3])
return 1
`

// commitScript is the compare-and-swap plus append. Either every write
// happens or none does.
//
// KEYS[1] account hash, KEYS[2] txns zset, KEYS[3] idem hash, KEYS[4] sequence
// ARGV    expected_version, resulting_balance, updated_at, idempotency_key, record_json
const commitScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'not_found'}
end
local version = tonumber(redis.call('HGET', KEYS[1], 'version'))
if version ~= tonumber(ARGV[1]) then
  return {'conflict'}
end
if ARGV[4] ~= '' and redis.call('HEXISTS', KEYS[3], ARGV[4]) == 1 then
  return {'duplicate'}
end
local id = redis.call('INCR', KEYS[4])
local record = cjson.decode(ARGV[5])
record['id'] = tostring(id)
record['account_version'] = tostring(version + 1)
local encoded = cjson.encode(record)
redis.call('HSET', KEYS[1],
  'balance', ARGV[2],
  'version', tostring(version + 1),
  'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], id, encoded)
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[3], ARGV[4], encoded)
end
return {'ok', encoded}
`

const (
	commitOK        = "ok"
	commitNotFound  = "not_found"
	commitConflict  = "conflict"
	commitDuplicate = "duplicate"
)
