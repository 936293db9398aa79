package rediskv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
	"contenthub/internal/store"
)

func setupKV(t *testing.T) (*KV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "team:"), mr
}

func TestGetSetWithPrefix(t *testing.T) {
	kv, mr := setupKV(t)
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, store.KeyVersion)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, store.KeyVersion, "7"))
	v, ok, err := kv.Get(ctx, store.KeyVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	raw, err := mr.Get("team:hub_version")
	require.NoError(t, err)
	assert.Equal(t, "7", raw)
}

func TestStoreRoundTripThroughRedis(t *testing.T) {
	kv, _ := setupKV(t)
	ctx := context.Background()
	s := store.New(kv)
	_, err := s.CreateItem(ctx, store.NewItem{Type: domain.TypePodcast, Title: "Episode"})
	require.NoError(t, err)

	other := store.New(kv)
	other.Load(ctx)
	assert.Equal(t, int64(1), other.Version())
	require.Len(t, other.AllItems(), 1)
	assert.Equal(t, "Episode", other.AllItems()[0].Title)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := Connect(context.Background(), Options{Addr: mr.Addr(), Prefix: "x:"}, logging.Discard())
	require.NoError(t, err)
	defer kv.Close()
	require.NoError(t, kv.Set(context.Background(), "k", "v"))
	assert.True(t, mr.Exists("x:k"))

	mr.Close()
	_, err = Connect(context.Background(), Options{Addr: mr.Addr()}, nil)
	assert.Error(t, err)
}
