package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value string `json:"value"`
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewJSONCache(client, time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Value: "cop"}, nil
	}

	var first, second payload
	require.NoError(t, c.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, c.FetchJSON(ctx, "k", &second, loader))
	require.Equal(t, "cop", second.Value)
	require.Equal(t, 1, calls)
	require.True(t, mr.Exists("k"))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("k"))

	require.NoError(t, c.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, c.Delete(ctx, "k"))
	require.False(t, mr.Exists("k"))
	require.Equal(t, 2, calls)
}

func TestFetchJSONLoaderErrorNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewJSONCache(client, time.Minute)

	var out payload
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	})
	require.EqualError(t, err, "db down")
	require.False(t, mr.Exists("k"))
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var c *JSONCache
	var out payload
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return payload{Value: "x"}, nil
	}))
	require.Equal(t, "x", out.Value)
	require.NoError(t, c.Delete(context.Background(), "k"))
}
