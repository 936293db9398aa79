package remote

import (
	"context"
	"time"

	"contenthub/internal/logging"
	"contenthub/internal/metrics"
	"contenthub/internal/store"
)

// Syncer pulls remote snapshots into a store.
type Syncer struct {
	Store    *store.Store
	Source   Source
	Interval time.Duration
	Log      logging.Logger
	Metrics  *metrics.Collector
}

// SyncOnce fetches and reconciles one snapshot. Failures are logged and
// reported as OutcomeUnavailable; nothing is returned as an error.
func (s Syncer) SyncOnce(ctx context.Context) store.Outcome {
	log := s.Log
	if log == nil {
		log = logging.Discard()
	}
	snap, err := s.Source.Fetch(ctx)
	if err != nil {
		log.WithFields(logging.Fields{"error": err}).Warn("remote sync unavailable")
		s.Metrics.Reconciliation(string(store.OutcomeUnavailable))
		return store.OutcomeUnavailable
	}
	out := s.Store.Reconcile(ctx, snap)
	log.WithFields(logging.Fields{
		"outcome":        out,
		"remote_version": snap.Version,
		"items":          len(snap.Items),
	}).Debug("remote sync finished")
	return out
}

// Run syncs immediately and then every Interval until ctx is cancelled. A
// zero Interval syncs once.
func (s Syncer) Run(ctx context.Context) {
	s.SyncOnce(ctx)
	if s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}
