package services

import (
	"context"
	"time"

	"ah_scanner/models"
	"ah_scanner/storage"
)

const healthRunWindow = 50

type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthStarting HealthState = "starting"
	HealthStale    HealthState = "stale"
)

type Health struct {
	Status           HealthState `json:"status"`
	LastListingRun   *time.Time  `json:"last_listing_run,omitempty"`
	LastImport       *time.Time  `json:"last_import,omitempty"`
	LastCompaction   *time.Time  `json:"last_compaction,omitempty"`
	RecentFailures   int         `json:"recent_failures"`
	SnapshotListings int         `json:"snapshot_listings"`
}

// HealthcheckService reports whether listing cycles are still landing.
type HealthcheckService struct {
	ops        storage.OpsStore
	staleAfter time.Duration
	now        func() time.Time
	startedAt  time.Time
}

func NewHealthcheckService(ops storage.OpsStore, staleAfter time.Duration) *HealthcheckService {
	return &HealthcheckService{ops: ops, staleAfter: staleAfter, now: time.Now, startedAt: time.Now()}
}

// WithClock replaces the wall clock and restarts the startup window from it.
func (s *HealthcheckService) WithClock(now func() time.Time) *HealthcheckService {
	s.now = now
	s.startedAt = now()
	return s
}

// Check looks at the recent run records. A scanner whose last successful
// listing cycle is older than staleAfter is stale. One that has not finished a
// cycle yet is starting until staleAfter has passed since it came up.
func (s *HealthcheckService) Check(ctx context.Context) (*Health, error) {
	runs, err := s.ops.RecentRuns(ctx, healthRunWindow)
	if err != nil {
		return nil, err
	}

	h := &Health{Status: HealthStarting}
	for i := range runs {
		r := &runs[i]
		if r.Status == models.RunStatusFailed {
			h.RecentFailures++
		}
		if !succeeded(r) {
			continue
		}
		switch r.Kind {
		case models.RunKindListings:
			if h.LastListingRun == nil {
				h.LastListingRun = r.FinishedAt
				h.SnapshotListings = r.ListingsSeen
			}
		case models.RunKindTransactions:
			if h.LastImport == nil {
				h.LastImport = r.FinishedAt
			}
		case models.RunKindCompaction:
			if h.LastCompaction == nil {
				h.LastCompaction = r.FinishedAt
			}
		}
	}

	since := s.startedAt
	if h.LastListingRun != nil {
		h.Status = HealthOK
		since = *h.LastListingRun
	}
	if s.staleAfter > 0 && s.now().Sub(since) > s.staleAfter {
		h.Status = HealthStale
	}
	return h, nil
}

func succeeded(r *models.PollRun) bool {
	if r.FinishedAt == nil {
		return false
	}
	return r.Status == models.RunStatusCompleted || r.Status == models.RunStatusPartial
}
