package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ah_scanner/models"
	"ah_scanner/services"
	"ah_scanner/storage"
)

// CompactionWorker runs the compactor on an interval and on demand, recording
// each run in poll_runs.
type CompactionWorker struct {
	compactor *services.Compactor
	ops       storage.OpsStore
	triggerCh chan struct{}
	logFunc   LogFunc
	mu        sync.Mutex
}

func NewCompactionWorker(compactor *services.Compactor, ops storage.OpsStore) *CompactionWorker {
	return &CompactionWorker{
		compactor: compactor,
		ops:       ops,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *CompactionWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *CompactionWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run compacts once per interval, or only on Trigger when interval is zero.
// It returns nil on shutdown and an error only when the store is corrupted.
func (w *CompactionWorker) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("compaction worker stopping")
			return nil
		case <-tick:
		case <-w.triggerCh:
			slog.Info("compaction triggered manually")
		}
		if _, err := w.RunOnce(ctx); err != nil && storage.IsCorrupt(err) {
			return err
		}
	}
}

// RunOnce performs one compaction pass. Concurrent calls are serialized.
func (w *CompactionWorker) RunOnce(ctx context.Context) (*services.CompactionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	run := &models.PollRun{
		RunKey:    uuid.NewString(),
		Kind:      models.RunKindCompaction,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	id, err := w.ops.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create compaction run: %w", err)
	}
	run.ID = id

	res, runErr := w.compactor.Run(ctx)

	finished := time.Now()
	run.FinishedAt = &finished
	switch {
	case runErr != nil && len(res.Days) > 0:
		run.Status = models.RunStatusPartial
		run.ErrorsCount = 1
	case runErr != nil:
		run.Status = models.RunStatusFailed
		run.ErrorsCount = 1
	case len(res.Days) == 0:
		run.Status = models.RunStatusSkipped
	default:
		run.Status = models.RunStatusCompleted
	}

	if runErr != nil {
		w.logFunc(&run.ID, models.LogLevelError, "compaction", fmt.Sprintf("Compaction failed: %v", runErr))
	} else if len(res.Days) > 0 {
		w.logFunc(&run.ID, models.LogLevelInfo, "compaction",
			fmt.Sprintf("Compacted %s: %d rollups, %d events and %d prices purged",
				strings.Join(res.Days, ", "), res.RollupsWritten, res.EventsPurged, res.PricesPurged))
	}

	if err := w.ops.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("update compaction run", "error", err)
	}
	return res, runErr
}
