package store

import (
	"context"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
)

// Outcome is the result of reconciling a remote snapshot.
type Outcome string

const (
	OutcomeAdopted     Outcome = "adopted"
	OutcomeStale       Outcome = "stale"
	OutcomeEmpty       Outcome = "empty"
	OutcomeUnavailable Outcome = "unavailable"
)

// RemoteSnapshot is the published dataset document. Members and Checkins are
// optional: nil keeps the local collections.
type RemoteSnapshot struct {
	Version  int64                `json:"version"`
	Items    []domain.ContentItem `json:"items"`
	Members  []domain.TeamMember  `json:"members,omitempty"`
	Checkins []domain.Checkin     `json:"checkins,omitempty"`
}

// ShouldAdopt decides whether a non-empty remote snapshot replaces local
// data. A tie adopts the remote copy; an empty local cache always adopts.
func ShouldAdopt(localVersion int64, localItems int, remoteVersion int64) bool {
	return remoteVersion >= localVersion || localItems == 0
}

// AdoptedVersion is the version recorded after adopting remoteVersion. It is
// never lower than the remote value and always moves past the local one.
func AdoptedVersion(localVersion, remoteVersion int64) int64 {
	if remoteVersion > localVersion+1 {
		return remoteVersion
	}
	return localVersion + 1
}

// Reconcile applies snap when it is at least as new as the local state. The
// decision and the replacement happen under one lock.
func (s *Store) Reconcile(ctx context.Context, snap RemoteSnapshot) Outcome {
	if len(snap.Items) == 0 {
		s.metrics.Reconciliation(string(OutcomeEmpty))
		return OutcomeEmpty
	}
	s.mu.Lock()
	local := s.version
	if !ShouldAdopt(local, len(s.items), snap.Version) {
		s.mu.Unlock()
		s.log.WithFields(logging.Fields{"local": local, "remote": snap.Version}).Debug("remote snapshot is stale")
		s.metrics.Reconciliation(string(OutcomeStale))
		return OutcomeStale
	}
	s.items = snap.Items
	if snap.Members != nil {
		s.members = snap.Members
	}
	if snap.Checkins != nil {
		s.checkins = snap.Checkins
	}
	s.version = AdoptedVersion(local, snap.Version)
	ch := s.finishLocked(ctx, Change{
		Op:         "dataset.adopted",
		EntityKind: "dataset",
		Payload:    map[string]any{"remoteVersion": snap.Version, "localVersion": local, "items": len(snap.Items)},
	})
	s.mu.Unlock()
	s.metrics.Reconciliation(string(OutcomeAdopted))
	s.log.WithFields(logging.Fields{"local": local, "remote": snap.Version, "version": ch.Version}).Info("adopted remote snapshot")
	s.publish(ch)
	return OutcomeAdopted
}

// Export is a full portable copy of the dataset.
type Export struct {
	Version    int64                `json:"version"`
	Items      []domain.ContentItem `json:"items"`
	Members    []domain.TeamMember  `json:"members"`
	Checkins   []domain.Checkin     `json:"checkins,omitempty"`
	ExportedAt domain.Millis        `json:"exportedAt"`
}

func (s *Store) Export() Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Export{
		Version:    s.version,
		Items:      nonNilItems(s.items),
		Members:    nonNilMembers(s.members),
		Checkins:   s.checkins,
		ExportedAt: domain.FromTime(s.now()),
	}
}

// ImportData is accepted by Import. Items is required; Members and Checkins
// are replaced only when present.
type ImportData struct {
	Version  int64                `json:"version,omitempty"`
	Items    []domain.ContentItem `json:"items"`
	Members  []domain.TeamMember  `json:"members,omitempty"`
	Checkins []domain.Checkin     `json:"checkins,omitempty"`
}

// Import replaces the dataset unconditionally. The version becomes
// data.Version when positive, otherwise the local version plus one.
func (s *Store) Import(ctx context.Context, data ImportData) (int64, error) {
	if data.Items == nil {
		return 0, invalid("items", "required")
	}
	for i, it := range data.Items {
		if it.ID == "" {
			return 0, invalid("items", "item %d has no _id", i)
		}
	}
	s.mu.Lock()
	s.items = data.Items
	if data.Members != nil {
		s.members = data.Members
	}
	if data.Checkins != nil {
		s.checkins = data.Checkins
	}
	if data.Version > 0 {
		s.version = data.Version
	} else {
		s.version++
	}
	ch := s.finishLocked(ctx, Change{
		Op:         "dataset.imported",
		EntityKind: "dataset",
		Payload:    map[string]any{"items": len(data.Items)},
	})
	s.mu.Unlock()
	s.publish(ch)
	return ch.Version, nil
}
