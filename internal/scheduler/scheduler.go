// Package scheduler runs the periodic zone snapshot refresh.
package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"rulegate/internal/provider"
	"rulegate/internal/stateindex"
)

// refreshTimeout bounds one full refresh cycle across all zones.
const refreshTimeout = 5 * time.Minute

// RefreshScheduler re-analyzes every provider zone on a cron schedule so
// the persisted snapshots do not drift from remote state.
type RefreshScheduler struct {
	index    *stateindex.Index
	provider provider.API
	spec     string
	cron     *cron.Cron
	busy     atomic.Bool
}

// New creates a refresh scheduler with the given cron spec.
func New(index *stateindex.Index, api provider.API, spec string) *RefreshScheduler {
	return &RefreshScheduler{
		index:    index,
		provider: api,
		spec:     spec,
		cron:     cron.New(),
	}
}

// Start registers the refresh job and begins the cron loop.
func (s *RefreshScheduler) Start() error {
	entryID, err := s.cron.AddFunc(s.spec, s.runRefresh)
	if err != nil {
		return err
	}
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		if entry.ID == entryID {
			log.Printf("scheduler: zone refresh scheduled %q (next run: %s)", s.spec, entry.Next.Format(time.RFC3339))
			break
		}
	}
	return nil
}

// Stop halts the cron loop. A refresh already in flight finishes on its own.
func (s *RefreshScheduler) Stop() {
	s.cron.Stop()
	log.Printf("scheduler: zone refresh stopped")
}

// RunNow triggers an immediate refresh outside the schedule.
func (s *RefreshScheduler) RunNow() {
	go s.runRefresh()
}

// runRefresh performs one full refresh cycle. Overlapping runs are skipped
// rather than queued: the next scheduled tick picks up whatever this one
// would have seen.
func (s *RefreshScheduler) runRefresh() {
	if !s.busy.CompareAndSwap(false, true) {
		log.Printf("scheduler: refresh still running, skipping this tick")
		return
	}
	defer s.busy.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	zones, err := provider.ListAllZones(ctx, s.provider, 0)
	if err != nil {
		log.Printf("scheduler: zone listing failed: %v", err)
		return
	}
	refreshed, err := s.index.RefreshAll(ctx, zones)
	if err != nil {
		log.Printf("scheduler: refresh failed: %v", err)
		return
	}
	log.Printf("scheduler: refreshed %d/%d zones", len(refreshed), len(zones))
}
