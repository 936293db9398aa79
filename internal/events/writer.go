package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

// Writer appends store changes to the journal.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
	Log  logging.Logger
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, version int64, evtType, entityKind, entityID, actor string, payload EventPayload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	return w.Repo.InsertEvent(ctx, domain.Event{
		TS:         ts,
		Version:    version,
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Actor:      actor,
		Payload:    string(data),
	})
}

// Hook returns a commit hook that journals every change. Journal failures
// are logged and never affect the store.
func (w Writer) Hook() func(store.Change) {
	return func(ch store.Change) {
		now := w.Now
		if !ch.At.IsZero() {
			at := ch.At
			now = func() time.Time { return at }
		}
		jw := Writer{Repo: w.Repo, Now: now}
		if _, err := jw.Append(context.Background(), ch.Version, ch.Op, ch.EntityKind, ch.EntityID, ch.Actor, EventPayload(ch.Payload)); err != nil && w.Log != nil {
			w.Log.WithFields(logging.Fields{"op": ch.Op, "error": err}).Warn("journal append failed")
		}
	}
}
