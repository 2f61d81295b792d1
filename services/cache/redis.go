// Package cachesvc implements the district lookup cache on Redis. ZIP
// resolution sits on the onboarding hot path and district records change
// rarely, so entries are kept with a generous TTL.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
)

type DistrictCache struct {
	client *redis.Client
	ttl    time.Duration
	log    core.Logger
}

var _ district.Cache = (*DistrictCache)(nil)

func NewDistrictCache(client *redis.Client, conf *core.Config, log core.Logger) *DistrictCache {
	return &DistrictCache{
		client: client,
		ttl:    conf.Redis.DistrictCacheTTL,
		log:    log,
	}
}

func zipKey(zip string) string { return "district:zip:" + zip }

// GetZIP reports a cached district for the ZIP. Cache errors are logged and
// treated as misses so lookups fall through to the database.
func (c *DistrictCache) GetZIP(ctx context.Context, zip string) (district.District, bool) {
	val, err := c.client.Get(ctx, zipKey(zip)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("district cache read failed", err)
		}
		return district.District{}, false
	}
	var d district.District
	if err = json.Unmarshal(val, &d); err != nil {
		c.log.Warn("district cache entry corrupt", err)
		return district.District{}, false
	}
	return d, true
}

func (c *DistrictCache) SetZIP(ctx context.Context, zip string, d district.District) {
	val, err := json.Marshal(d)
	if err != nil {
		c.log.Warn("district cache marshal failed", err)
		return
	}
	if err = c.client.Set(ctx, zipKey(zip), val, c.ttl).Err(); err != nil {
		c.log.Warn("district cache write failed", err)
	}
}

// InvalidateZIPs drops cached entries after a district record changes.
func (c *DistrictCache) InvalidateZIPs(ctx context.Context, zips ...string) {
	if len(zips) == 0 {
		return
	}
	keys := make([]string, 0, len(zips))
	for _, zip := range zips {
		keys = append(keys, zipKey(zip))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("district cache invalidation failed", err)
	}
}
