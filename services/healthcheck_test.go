package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ah_scanner/models"
	"ah_scanner/storage"
)

func addRun(t *testing.T, s storage.OpsStore, kind models.RunKind, status models.RunStatus, finished time.Time) {
	t.Helper()
	ctx := context.Background()
	run := &models.PollRun{RunKey: string(kind) + finished.String(), Kind: kind, StartedAt: finished, Status: models.RunStatusRunning}
	id, err := s.CreateRun(ctx, run)
	require.NoError(t, err)
	run.ID, run.Status, run.FinishedAt, run.ListingsSeen = id, status, &finished, 12
	require.NoError(t, s.UpdateRun(ctx, run))
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	hc := NewHealthcheckService(s, 5*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	h, err := hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthStarting, h.Status)

	addRun(t, s, models.RunKindListings, models.RunStatusPartial, now.Add(-10*time.Minute))
	addRun(t, s, models.RunKindCompaction, models.RunStatusCompleted, now.Add(-time.Hour))
	addRun(t, s, models.RunKindListings, models.RunStatusFailed, now.Add(-time.Minute))

	h, err = hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthStale, h.Status)
	assert.Equal(t, 1, h.RecentFailures)
	require.NotNil(t, h.LastCompaction)
	assert.Nil(t, h.LastImport)

	addRun(t, s, models.RunKindListings, models.RunStatusCompleted, now.Add(-time.Minute))
	h, err = hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthOK, h.Status)
	assert.Equal(t, 12, h.SnapshotListings)
	assert.True(t, h.LastListingRun.Equal(now.Add(-time.Minute)))
}

func TestHealthcheck_NoCycleWithinStartupWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	hc := NewHealthcheckService(s, 5*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	now = now.Add(4 * time.Minute)
	addRun(t, s, models.RunKindListings, models.RunStatusFailed, now)
	h, err := hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthStarting, h.Status)

	now = now.Add(2 * time.Minute)
	h, err = hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthStale, h.Status)
	assert.Nil(t, h.LastListingRun)
	assert.Equal(t, 1, h.RecentFailures)

	addRun(t, s, models.RunKindListings, models.RunStatusCompleted, now)
	h, err = hc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthOK, h.Status)
}
