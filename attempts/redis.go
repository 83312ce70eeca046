package attempts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cca:"

// failScript mirrors Record.fail. Times are unix milliseconds.
const failScript = `
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])

local data = redis.call("HMGET", KEYS[1], "count", "window_start", "unblock_at")
local count = tonumber(data[1]) or 0
local window_start = tonumber(data[2]) or 0
local unblock_at = tonumber(data[3]) or 0

if unblock_at > 0 then
  if now < unblock_at then
    return {count, window_start, unblock_at}
  end
  count = 0
  unblock_at = 0
end

if count == 0 or now - window_start >= window then
  count = 0
  window_start = now
end

count = count + 1
local ttl = window
if count >= threshold then
  unblock_at = now + lockout
  ttl = lockout
end

redis.call("HSET", KEYS[1], "count", count, "window_start", window_start, "unblock_at", unblock_at)
redis.call("PEXPIRE", KEYS[1], ttl)
return {count, window_start, unblock_at}
`

const getScript = `
local data = redis.call("HMGET", KEYS[1], "count", "window_start", "unblock_at")
local count = tonumber(data[1]) or 0
local window_start = tonumber(data[2]) or 0
local unblock_at = tonumber(data[3]) or 0
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if (unblock_at > 0 and now >= unblock_at) or (unblock_at == 0 and count > 0 and now - window_start >= window) then
  redis.call("DEL", KEYS[1])
  return {0, 0, 0}
end
return {count, window_start, unblock_at}
`

var (
	failLua = redis.NewScript(failScript)
	getLua  = redis.NewScript(getScript)
)

// RedisStore shares attempt records between instances. Each operation is a
// single script, so concurrent failures for one key never lose updates.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects "cca:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Fail(ctx context.Context, key string, now time.Time, p Policy) (Record, error) {
	res, err := failLua.Run(ctx, s.redis, []string{s.key(key)},
		now.UnixMilli(), p.Threshold, p.Window.Milliseconds(), p.LockoutDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return recordFromScript(res)
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time, p Policy) (Record, error) {
	res, err := getLua.Run(ctx, s.redis, []string{s.key(key)}, now.UnixMilli(), p.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return recordFromScript(res)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func recordFromScript(res []int64) (Record, error) {
	if len(res) != 3 {
		return Record{}, fmt.Errorf("%w: unexpected script reply of %d values", ErrStoreUnavailable, len(res))
	}
	var rec Record
	rec.Count = int(res[0])
	if res[1] > 0 {
		rec.WindowStart = time.UnixMilli(res[1])
	}
	if res[2] > 0 {
		rec.UnblockAt = time.UnixMilli(res[2])
	}
	return rec, nil
}
