package repository

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

// ProfileCache keeps diner restriction masks in Redis.  Masks never change
// for the booking core, so entries are only evicted by TTL.  A nil
// *ProfileCache is valid and caches nothing.
type ProfileCache struct {
	rdb *redis.Client
	cfg config.CacheConfig
}

// NewProfileCache returns nil when caching is disabled or rdb is nil.
func NewProfileCache(cfg config.CacheConfig, rdb *redis.Client) *ProfileCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &ProfileCache{rdb: rdb, cfg: cfg}
}

func (c *ProfileCache) key(dinerID uint64) string {
	return c.cfg.Prefix + ":diner:" + strconv.FormatUint(dinerID, 10)
}

// Get returns cached masks and the ids that were not found.  Redis errors
// are treated as misses.
func (c *ProfileCache) Get(ctx context.Context, dinerIDs []uint64) (map[uint64]restriction.Mask, []uint64) {
	found := map[uint64]restriction.Mask{}
	if c == nil || len(dinerIDs) == 0 {
		return found, dinerIDs
	}
	keys := make([]string, len(dinerIDs))
	for i, id := range dinerIDs {
		keys[i] = c.key(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return found, dinerIDs
	}
	missing := []uint64{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, dinerIDs[i])
			continue
		}
		m, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			missing = append(missing, dinerIDs[i])
			continue
		}
		found[dinerIDs[i]] = restriction.Mask(m)
	}
	return found, missing
}

// Set stores masks; failures are ignored because the database stays the
// source of truth.
func (c *ProfileCache) Set(ctx context.Context, masks map[uint64]restriction.Mask) {
	if c == nil || len(masks) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	for id, m := range masks {
		pipe.SetEx(ctx, c.key(id), strconv.FormatUint(uint64(m), 10), c.cfg.TTL)
	}
	_, _ = pipe.Exec(ctx)
}
