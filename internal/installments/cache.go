package installments

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "installments:version"
	bumpChannel     = "installments.bump"
)

// Cache stores grouped listing pages in Redis under a global version that
// every mutation bumps. Concurrent misses for the same key share one load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Grouped returns the cached page for q or loads and stores it.
func (c *Cache) Grouped(ctx context.Context, q GroupedQuery, load func(context.Context, GroupedQuery) (GroupedPage, error)) (GroupedPage, error) {
	if c == nil || c.client == nil {
		return load(ctx, q)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return load(ctx, q)
	}
	key := groupedKey(q, ver)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var page GroupedPage
		if err := json.Unmarshal(raw, &page); err == nil {
			return page, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		page, err := load(ctx, q)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(page); err == nil {
			_ = c.client.Set(context.WithoutCancel(ctx), key, raw, c.ttl).Err()
		}
		return page, nil
	})
	select {
	case <-ctx.Done():
		return GroupedPage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return GroupedPage{}, res.Err
		}
		return res.Val.(GroupedPage), nil
	}
}

// Bump invalidates every cached page and publishes the new version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

func groupedKey(q GroupedQuery, ver int64) string {
	search := ""
	if terms := strings.Fields(strings.ToLower(q.Search)); len(terms) > 0 {
		sum := sha1.Sum([]byte(strings.Join(terms, " ")))
		search = hex.EncodeToString(sum[:8])
	}
	return strings.Join([]string{
		"installments", "grouped",
		strconv.Itoa(q.Page),
		strconv.Itoa(q.Limit),
		string(q.PaymentStatus),
		strconv.FormatInt(q.CustomerID, 10),
		search,
		strconv.FormatInt(ver, 10),
	}, ":")
}
