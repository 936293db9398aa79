package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/db"
	"contenthub/internal/domain"
	"contenthub/internal/migrate"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, nil))
	return repo.Repo{DB: conn}
}

func TestHookJournalsStoreChanges(t *testing.T) {
	r := newRepo(t)
	at := time.Date(2026, 3, 18, 9, 30, 0, 0, time.UTC)
	w := Writer{Repo: r}
	s := store.New(r, store.WithCommitHook(w.Hook()), store.WithClock(func() time.Time { return at }))
	ctx := context.Background()

	it, err := s.CreateItem(ctx, store.NewItem{Type: domain.TypeEditorial, Title: "Essay", CreatedBy: "Alex"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, it.ID, "assigned", "Alex")
	require.NoError(t, err)

	evts, err := r.LatestEvents(ctx, 10, repo.EventFilter{EntityID: it.ID})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "item.status", evts[0].Type)
	assert.Equal(t, int64(2), evts[0].Version)
	assert.Equal(t, "Alex", evts[0].Actor)
	assert.Equal(t, "2026-03-18T09:30:00Z", evts[0].TS)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	assert.Equal(t, "assigned", payload["status"])
	assert.Equal(t, "pitch", payload["from"])

	after, err := r.EventsAfter(ctx, 10, evts[1].ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, evts[0].ID, after[0].ID)

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, evts[0].ID, latest)
}
