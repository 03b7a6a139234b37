package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MonthCache stores the per-day blocked labels of one calendar month. Each
// month carries a generation counter bumped on every invalidation; an entry
// is only written while the generation it was loaded under is still current.
type MonthCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var setIfGenerationScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewMonthCache(rdb redis.UniversalClient, ttl time.Duration, prefix string) *MonthCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if prefix == "" {
		prefix = "availability:month:"
	}
	return &MonthCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *MonthCache) key(year int, month time.Month) string {
	return fmt.Sprintf("%s%04d-%02d", c.prefix, year, int(month))
}

func (c *MonthCache) genKey(year int, month time.Month) string {
	return c.key(year, month) + ":gen"
}

// Generation returns the month's current generation. Read it before loading
// the data passed to Set.
func (c *MonthCache) Generation(ctx context.Context, year int, month time.Month) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, nil
	}
	gen, err := c.rdb.Get(ctx, c.genKey(year, month)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns ok=false on a miss. A nil cache always misses.
func (c *MonthCache) Get(ctx context.Context, year int, month time.Month) (map[string][]string, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, c.key(year, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var days map[string][]string
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, false, err
	}
	if days == nil {
		days = map[string][]string{}
	}
	return days, true, nil
}

// Set stores days loaded under gen. stored is false when an invalidation
// happened since, in which case nothing is written.
func (c *MonthCache) Set(ctx context.Context, year int, month time.Month, gen int64, days map[string][]string) (stored bool, err error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	if days == nil {
		days = map[string][]string{}
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return false, err
	}
	res, err := setIfGenerationScript.Run(ctx, c.rdb,
		[]string{c.key(year, month), c.genKey(year, month)},
		strconv.FormatInt(gen, 10), string(raw), c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Invalidate bumps the generation, then drops the cached entry.
func (c *MonthCache) Invalidate(ctx context.Context, year int, month time.Month) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Incr(ctx, c.genKey(year, month)).Err(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, c.key(year, month)).Err()
}
