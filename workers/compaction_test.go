package workers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ah_scanner/models"
	"ah_scanner/services"
	"ah_scanner/storage"
)

// 2024-03-10T00:00:00Z
var day0 = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s storage.EventStore, day time.Time, prices ...float64) {
	t.Helper()
	ctx := context.Background()
	for i, p := range prices {
		ts := day.Add(time.Duration(i+1) * time.Hour).UnixMilli()
		require.NoError(t, s.AppendEvent(ctx, &models.Event{
			Type: models.EventSold, TS: ts, ItemID: "beacon", ItemName: "Beacon", Price: p, Count: 1,
		}))
		require.NoError(t, s.InsertPricePoint(ctx, &models.PricePoint{
			ItemID: "beacon", ItemName: "Beacon", Price: p, SeenAt: ts,
		}))
	}
}

func newTestWorker(store storage.EventStore, ops storage.OpsStore) *CompactionWorker {
	now := day0.Add(30 * 24 * time.Hour)
	c := services.NewCompactor(store, 7, nil).WithClock(func() time.Time { return now })
	return NewCompactionWorker(c, ops)
}

func lastRun(t *testing.T, ops storage.OpsStore) models.PollRun {
	t.Helper()
	runs, err := ops.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunKindCompaction, runs[0].Kind)
	return runs[0]
}

type corruptStore struct {
	storage.EventStore
}

func (corruptStore) RawDaysBefore(context.Context, int64) ([]models.Day, error) {
	return nil, &storage.StoreError{Op: "raw days", Err: errors.New("database disk image is malformed"), Corrupt: true}
}

// secondWriteFails lets the first day through and fails the next one.
type secondWriteFails struct {
	storage.EventStore
	mu     sync.Mutex
	writes int
}

func (s *secondWriteFails) WriteRollups(ctx context.Context, rollups []models.DailyRollup) error {
	s.mu.Lock()
	s.writes++
	n := s.writes
	s.mu.Unlock()
	if n > 1 {
		return errors.New("disk full")
	}
	return s.EventStore.WriteRollups(ctx, rollups)
}

func TestRunOnce_Statuses(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *storage.SQLiteStore) storage.EventStore
		want  models.RunStatus
		days  []string
		fails bool
	}{
		{
			name: "completed",
			setup: func(t *testing.T, s *storage.SQLiteStore) storage.EventStore {
				seed(t, s, day0, 10, 20)
				return s
			},
			want: models.RunStatusCompleted,
			days: []string{"2024-03-10"},
		},
		{
			name: "skipped",
			setup: func(t *testing.T, s *storage.SQLiteStore) storage.EventStore {
				return s
			},
			want: models.RunStatusSkipped,
		},
		{
			name: "partial",
			setup: func(t *testing.T, s *storage.SQLiteStore) storage.EventStore {
				seed(t, s, day0, 10, 20)
				seed(t, s, day0.Add(24*time.Hour), 30)
				return &secondWriteFails{EventStore: s}
			},
			want:  models.RunStatusPartial,
			days:  []string{"2024-03-10"},
			fails: true,
		},
		{
			name: "failed",
			setup: func(t *testing.T, s *storage.SQLiteStore) storage.EventStore {
				return corruptStore{s}
			},
			want:  models.RunStatusFailed,
			fails: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			w := newTestWorker(tt.setup(t, s), s)

			var logged []models.LogLevel
			w.SetLogger(func(runID *int64, level models.LogLevel, source, message string) {
				require.NotNil(t, runID)
				assert.Equal(t, "compaction", source)
				logged = append(logged, level)
			})

			res, err := w.RunOnce(context.Background())
			if tt.fails {
				require.Error(t, err)
				assert.Equal(t, []models.LogLevel{models.LogLevelError}, logged)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, res)
			if tt.days == nil {
				assert.Empty(t, res.Days)
			} else {
				assert.Equal(t, tt.days, res.Days)
			}

			run := lastRun(t, s)
			assert.Equal(t, tt.want, run.Status)
			assert.NotNil(t, run.FinishedAt)
			if tt.fails {
				assert.Equal(t, 1, run.ErrorsCount)
			}
		})
	}
}

func TestRun_StopsOnCorruptStore(t *testing.T) {
	s := newTestStore(t)
	w := newTestWorker(corruptStore{s}, s)
	w.Trigger()

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), 0) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, storage.IsCorrupt(err))
	case <-time.After(5 * time.Second):
		t.Fatal("worker kept running on a corrupted store")
	}
	assert.Equal(t, models.RunStatusFailed, lastRun(t, s).Status)
}

func TestRun_TriggerOnlyWithoutInterval(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, day0, 10, 20, 30)
	w := newTestWorker(s, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0) }()

	// no interval, so nothing runs until triggered
	time.Sleep(50 * time.Millisecond)
	runs, err := s.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	w.Trigger()
	require.Eventually(t, func() bool {
		runs, err := s.RecentRuns(context.Background(), 10)
		return err == nil && len(runs) == 1 && runs[0].Status == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}

	events, err := s.EventsSince(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRun_TransientFailureKeepsRunning(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, day0, 10)
	seed(t, s, day0.Add(24*time.Hour), 20)
	w := newTestWorker(&secondWriteFails{EventStore: s}, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0) }()

	w.Trigger()
	require.Eventually(t, func() bool {
		runs, err := s.RecentRuns(context.Background(), 10)
		return err == nil && len(runs) == 1 && runs[0].Status == models.RunStatusPartial
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("worker exited on a recoverable failure: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
