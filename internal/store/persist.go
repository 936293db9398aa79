package store

import (
	"context"
	"encoding/json"
	"strconv"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
)

// Durable storage keys. The version key is written last so a crash between
// writes never advertises a version newer than the blobs.
const (
	KeyItems    = "hub_items"
	KeyMembers  = "hub_members"
	KeyCheckins = "hub_checkins"
	KeyVersion  = "hub_version"
)

// persistLocked mirrors the whole cache into the KV. Failures are recorded
// and logged; the in-memory state stays authoritative. A committed change is
// written even when the caller's context is already cancelled.
func (s *Store) persistLocked(ctx context.Context) {
	if s.kv == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var firstErr error
	write := func(key string, v any) {
		var raw []byte
		var err error
		if str, ok := v.(string); ok {
			raw = []byte(str)
		} else if raw, err = json.Marshal(v); err != nil {
			s.recordPersistError(key, err, &firstErr)
			return
		}
		if err := s.kv.Set(ctx, key, string(raw)); err != nil {
			s.recordPersistError(key, err, &firstErr)
		}
	}
	write(KeyItems, nonNilItems(s.items))
	write(KeyMembers, nonNilMembers(s.members))
	write(KeyCheckins, nonNilCheckins(s.checkins))
	write(KeyVersion, strconv.FormatInt(s.version, 10))
	s.persistErr = firstErr
}

func (s *Store) recordPersistError(key string, err error, first *error) {
	perr := &PersistenceError{Key: key, Err: err}
	s.log.WithFields(logging.Fields{"key": key, "error": err}).Warn("store persist failed")
	s.metrics.PersistFailure()
	if *first == nil {
		*first = perr
	}
}

// LastPersistError returns the failure of the most recent persist, or nil
// when it succeeded.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

// Load replaces the cache with the persisted state. Any unreadable or
// malformed blob falls back to empty; Load never fails.
func (s *Store) Load(ctx context.Context) {
	items := readBlob[[]domain.ContentItem](ctx, s, KeyItems)
	members := readBlob[[]domain.TeamMember](ctx, s, KeyMembers)
	checkins := readBlob[[]domain.Checkin](ctx, s, KeyCheckins)
	var version int64
	if raw, ok := s.read(ctx, KeyVersion); ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			s.log.WithFields(logging.Fields{"key": KeyVersion, "value": raw}).Warn("ignoring malformed version")
		} else {
			version = v
		}
	}

	s.mu.Lock()
	s.items = items
	s.members = members
	s.checkins = checkins
	s.version = version
	s.byType = nil
	s.metrics.Observe(version, countByType(items))
	s.mu.Unlock()
	s.log.WithFields(logging.Fields{
		"items":    len(items),
		"members":  len(members),
		"checkins": len(checkins),
		"version":  version,
	}).Debug("store loaded")
	s.notify()
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s.kv == nil {
		return "", false
	}
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.WithFields(logging.Fields{"key": key, "error": err}).Warn("store read failed")
		return "", false
	}
	return raw, ok
}

func readBlob[T any](ctx context.Context, s *Store, key string) T {
	var zero, v T
	raw, ok := s.read(ctx, key)
	if !ok || raw == "" {
		return zero
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.WithFields(logging.Fields{"key": key, "error": err}).Warn("ignoring malformed blob")
		return zero
	}
	return v
}

func nonNilItems(v []domain.ContentItem) []domain.ContentItem {
	if v == nil {
		return []domain.ContentItem{}
	}
	return v
}

func nonNilMembers(v []domain.TeamMember) []domain.TeamMember {
	if v == nil {
		return []domain.TeamMember{}
	}
	return v
}

func nonNilCheckins(v []domain.Checkin) []domain.Checkin {
	if v == nil {
		return []domain.Checkin{}
	}
	return v
}
