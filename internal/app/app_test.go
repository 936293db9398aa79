package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/config"
	"contenthub/internal/domain"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

func TestOpenSeedsAndJournals(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	h, err := Open(ctx, dir, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, h.Store.AllItems())
	assert.Equal(t, int64(0), h.Store.Version())
	_, err = h.Store.CreateItem(ctx, store.NewItem{Type: domain.TypeTwitter, Title: "Fresh"})
	require.NoError(t, err)

	evts, err := h.Repo.LatestEvents(ctx, 10, repo.EventFilter{})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "item.created", evts[0].Type)
	assert.Equal(t, "dataset.seeded", evts[1].Type)
	require.NoError(t, h.Close())

	reopened, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, int64(1), reopened.Store.Version())
	assert.Len(t, reopened.Store.AllItems(), len(h.Store.AllItems()))
}

func TestOpenWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = mr.Addr()
	ctx := context.Background()

	h, err := Open(ctx, t.TempDir(), Options{Config: cfg, NoSeed: true})
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Store.CreateItem(ctx, store.NewItem{Type: domain.TypePodcast, Title: "Episode"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("hub:hub_items"))

	_, ok := h.Syncer(nil)
	assert.False(t, ok)
}

func TestCancelledRequestStillReachesDisk(t *testing.T) {
	dir := t.TempDir()
	h, err := Open(context.Background(), dir, Options{NoSeed: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Store.CreateItem(ctx, store.NewItem{Type: domain.TypeEditorial, Title: "Dropped connection"})
	require.NoError(t, err)
	require.NoError(t, h.Store.LastPersistError())
	require.NoError(t, h.Close())

	reopened, err := Open(context.Background(), dir, Options{NoSeed: true})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, int64(1), reopened.Store.Version())
	assert.Len(t, reopened.Store.AllItems(), 1)
}
