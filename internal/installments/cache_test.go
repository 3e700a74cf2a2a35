package installments

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheGroupedServesFromRedisUntilBump(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	var loads atomic.Int32
	load := func(_ context.Context, q GroupedQuery) (GroupedPage, error) {
		loads.Add(1)
		return GroupedPage{Items: []Plan{{SaleID: 7}}, Page: q.Page, Limit: q.Limit, Total: 1, TotalPages: 1}, nil
	}
	q := GroupedQuery{Page: 1, Limit: 10, Search: "Ahmed"}

	page, err := cache.Grouped(ctx, q, load)
	require.NoError(t, err)
	require.Equal(t, int64(7), page.Items[0].SaleID)

	page, err = cache.Grouped(ctx, q, load)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, int32(1), loads.Load())

	require.NoError(t, cache.Bump(ctx))
	ver, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	require.Equal(t, "2", ver)

	_, err = cache.Grouped(ctx, q, load)
	require.NoError(t, err)
	require.Equal(t, int32(2), loads.Load())
}

func TestCacheKeyNormalisesSearch(t *testing.T) {
	a := groupedKey(GroupedQuery{Page: 1, Limit: 10, Search: "Ahmed  ALI"}, 3)
	b := groupedKey(GroupedQuery{Page: 1, Limit: 10, Search: " ahmed ali "}, 3)
	c := groupedKey(GroupedQuery{Page: 2, Limit: 10, Search: "ahmed ali"}, 3)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, a, groupedKey(GroupedQuery{Page: 1, Limit: 10, Search: "ahmed ali"}, 4))
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var cache *Cache
	page, err := cache.Grouped(context.Background(), GroupedQuery{Page: 1}, func(context.Context, GroupedQuery) (GroupedPage, error) {
		return GroupedPage{Total: 3}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.NoError(t, cache.Bump(context.Background()))
}
