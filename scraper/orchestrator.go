package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ah_scanner/config"
	"ah_scanner/identity"
	"ah_scanner/models"
	"ah_scanner/observability"
	"ah_scanner/services"
	"ah_scanner/storage"
	"ah_scanner/workers"
)

// persistTimeout bounds a cycle's write once fetching is over. The write is
// detached from the caller's context so shutdown cannot tear it.
const persistTimeout = 30 * time.Second

// Orchestrator runs poll cycles against the listing feed and imports the
// transaction feed. It owns the previous snapshot used for diffing.
type Orchestrator struct {
	fetcher Fetcher
	store   storage.Store
	cfg     config.ScannerConfig
	metrics *observability.Metrics
	logFunc workers.LogFunc
	now     func() time.Time

	cycleMu  sync.Mutex // one listing cycle at a time; guards snapshot
	snapshot map[string]models.Listing

	importMu sync.Mutex
	paused   atomic.Bool
}

func NewOrchestrator(fetcher Fetcher, store storage.Store, cfg config.ScannerConfig, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		fetcher:  fetcher,
		store:    store,
		cfg:      cfg,
		metrics:  metrics,
		logFunc:  workers.NoOpLogger,
		now:      time.Now,
		snapshot: make(map[string]models.Listing),
	}
}

func (o *Orchestrator) SetLogger(fn workers.LogFunc) {
	o.logFunc = fn
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// SnapshotSize is the number of listings in the previous snapshot.
func (o *Orchestrator) SnapshotSize() int {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	return len(o.snapshot)
}

// IsFatal reports errors that must stop polling.
func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || storage.IsCorrupt(err)
}

// RunCycle fetches up to pages listing pages, diffs them against the previous
// snapshot and persists listings, price points and events in one write.
// Page failures are skipped; only AuthError and store errors are returned.
func (o *Orchestrator) RunCycle(ctx context.Context, pages int) (*models.PollRun, error) {
	if o.paused.Load() {
		slog.Info("polling paused, skipping cycle")
		return &models.PollRun{Kind: models.RunKindListings, Status: models.RunStatusSkipped}, nil
	}

	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	start := time.Now()
	run, err := o.startRun(ctx, models.RunKindListings)
	if err != nil {
		return nil, err
	}
	cycleTS := o.now().UTC().Format(time.RFC3339)

	cycleCtx := ctx
	if o.cfg.CycleDeadline > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, o.cfg.CycleDeadline)
		defer cancel()
	}

	var (
		listings []models.Listing
		cutShort bool
		cov      = &services.Coverage{Pages: make(map[int]bool)}
	)
	for page := 1; page <= pages; page++ {
		if cycleCtx.Err() != nil {
			cutShort = true
			o.log(run, models.LogLevelWarn, fmt.Sprintf("Cycle %s stopped before page %d: %v", cycleTS, page, cycleCtx.Err()))
			break
		}

		lp, err := o.fetcher.FetchListings(cycleCtx, page)
		if err != nil {
			if isAuth(err) {
				o.log(run, models.LogLevelError, fmt.Sprintf("Cycle %s halted: %v", cycleTS, err))
				run.ErrorsCount++
				o.finishRun(ctx, run, models.RunStatusFailed, start)
				return run, err
			}
			run.PagesFailed++
			run.ErrorsCount++
			o.log(run, models.LogLevelWarn, fmt.Sprintf("Cycle %s skipped page %d: %v", cycleTS, page, err))
			continue
		}

		run.PagesOK++
		cov.Pages[page] = true
		o.recordAnomalies(run, lp.Anomalies)
		for _, l := range lp.Listings {
			l.Page = page
			listings = append(listings, l)
		}
		if !lp.HasMore {
			cov.EndPage = page
			break
		}
	}

	if run.PagesOK == 0 {
		status := models.RunStatusSkipped
		if run.PagesFailed > 0 {
			status = models.RunStatusFailed
		}
		o.log(run, models.LogLevelWarn, fmt.Sprintf("Cycle %s fetched no pages, keeping previous snapshot", cycleTS))
		o.finishRun(ctx, run, status, start)
		return run, nil
	}

	observedAt := o.now().UnixMilli()
	identity.AssignIDs(listings)
	curr := make(map[string]models.Listing, len(listings))
	for i := range listings {
		listings[i].SeenAt = observedAt
		curr[listings[i].ID] = listings[i]
	}

	diff := services.DiffListings(o.snapshot, curr, cov, observedAt, o.cfg.ExpiryGrace)
	batch := &models.CycleBatch{
		ObservedAt: observedAt,
		Listings:   dedupe(listings),
		Vanished:   diff.Vanished,
		Carried:    diff.Carried,
		Events:     diff.Events,
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.store.PersistCycle(persistCtx, batch); err != nil {
		run.ErrorsCount++
		o.log(run, models.LogLevelError, fmt.Sprintf("Cycle %s persist failed: %v", cycleTS, err))
		o.finishRun(ctx, run, models.RunStatusFailed, start)
		return run, fmt.Errorf("persist cycle %s: %w", cycleTS, err)
	}

	next := curr
	if len(diff.Carried) > 0 {
		next = make(map[string]models.Listing, len(curr)+len(diff.Carried))
		for id, l := range curr {
			next[id] = l
		}
		for _, l := range diff.Carried {
			next[l.ID] = l
		}
	}
	if len(diff.Carried) > 0 || diff.Expired > 0 {
		slog.Debug("listings on unread pages", "cycle", cycleTS, "carried", len(diff.Carried), "expired", diff.Expired)
	}

	o.snapshot = next
	run.ListingsSeen = len(curr)
	run.Count(diff.Events)
	o.metrics.ObserveEvents(countByType(diff.Events))
	o.metrics.ObserveSnapshot(len(next), o.now())

	status := models.RunStatusCompleted
	if run.PagesFailed > 0 || cutShort {
		status = models.RunStatusPartial
	}
	o.log(run, models.LogLevelInfo,
		fmt.Sprintf("Cycle %s: %d listings, %d new, %d price changes, %d removed, %d sold",
			cycleTS, run.ListingsSeen, run.NewListings, run.PriceChanges, run.Removed, run.Sold))
	o.finishRun(ctx, run, status, start)
	return run, nil
}

// ImportTransactions pulls the transaction history and stores records not seen before.
func (o *Orchestrator) ImportTransactions(ctx context.Context) (*models.PollRun, error) {
	if o.paused.Load() {
		slog.Info("polling paused, skipping transaction import")
		return &models.PollRun{Kind: models.RunKindTransactions, Status: models.RunStatusSkipped}, nil
	}

	o.importMu.Lock()
	defer o.importMu.Unlock()

	start := time.Now()
	run, err := o.startRun(ctx, models.RunKindTransactions)
	if err != nil {
		return nil, err
	}

	pages := o.cfg.TransactionPages
	if pages <= 0 || pages > MaxTransactionPages {
		pages = MaxTransactionPages
	}

	var txs []models.Transaction
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			break
		}
		tp, err := o.fetcher.FetchTransactions(ctx, page)
		if err != nil {
			if isAuth(err) {
				o.log(run, models.LogLevelError, fmt.Sprintf("Transaction import halted: %v", err))
				run.ErrorsCount++
				o.finishRun(ctx, run, models.RunStatusFailed, start)
				return run, err
			}
			run.PagesFailed++
			run.ErrorsCount++
			o.log(run, models.LogLevelWarn, fmt.Sprintf("Transaction page %d skipped: %v", page, err))
			continue
		}
		run.PagesOK++
		o.recordAnomalies(run, tp.Anomalies)
		txs = append(txs, tp.Transactions...)
		if len(tp.Transactions) == 0 && len(tp.Anomalies) == 0 {
			break
		}
	}

	if run.PagesOK == 0 {
		status := models.RunStatusSkipped
		if run.PagesFailed > 0 {
			status = models.RunStatusFailed
		}
		o.finishRun(ctx, run, status, start)
		return run, nil
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	inserted, err := o.store.ImportTransactions(persistCtx, txs, o.now().UnixMilli())
	if err != nil {
		run.ErrorsCount++
		o.log(run, models.LogLevelError, fmt.Sprintf("Transaction import persist failed: %v", err))
		o.finishRun(ctx, run, models.RunStatusFailed, start)
		return run, fmt.Errorf("import transactions: %w", err)
	}

	run.Transactions = len(inserted)
	o.metrics.ObserveTransactions(len(inserted))
	o.metrics.ObserveEvents(map[string]int{string(models.EventTransaction): len(inserted)})

	status := models.RunStatusCompleted
	if run.PagesFailed > 0 {
		status = models.RunStatusPartial
	}
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Imported %d new of %d transactions", len(inserted), len(txs)))
	o.finishRun(ctx, run, status, start)
	return run, nil
}

// HandleCommand applies the operator commands the orchestrator owns.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdPollNow:
		_, err := o.RunCycle(ctx, o.cfg.Pages)
		return err
	case models.CmdImportNow:
		_, err := o.ImportTransactions(ctx)
		return err
	case models.CmdPause:
		o.paused.Store(true)
		slog.Info("polling paused")
	case models.CmdResume:
		o.paused.Store(false)
		slog.Info("polling resumed")
	default:
		return fmt.Errorf("unsupported command %q", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) startRun(ctx context.Context, kind models.RunKind) (*models.PollRun, error) {
	run := &models.PollRun{
		RunKey:    uuid.NewString(),
		Kind:      kind,
		StartedAt: o.now(),
		Status:    models.RunStatusRunning,
	}
	id, err := o.store.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create %s run: %w", kind, err)
	}
	run.ID = id
	return run, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, run *models.PollRun, status models.RunStatus, start time.Time) {
	finished := o.now()
	run.FinishedAt = &finished
	run.Status = status
	if err := o.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("update run", "run_key", run.RunKey, "error", err)
	}
	o.metrics.ObserveCycle(string(run.Kind), string(status), time.Since(start))
}

func (o *Orchestrator) recordAnomalies(run *models.PollRun, anomalies []DataAnomalyError) {
	if len(anomalies) == 0 {
		return
	}
	run.Anomalies += len(anomalies)
	for i := range anomalies {
		o.log(run, models.LogLevelWarn, "Skipped record: "+anomalies[i].Error())
	}
}

func (o *Orchestrator) log(run *models.PollRun, level models.LogLevel, message string) {
	o.logFunc(&run.ID, level, string(run.Kind), message)
}

func isAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func countByType(events []models.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[string(e.Type)]++
	}
	return counts
}

// dedupe keeps the last listing for each id, in first-seen order.
func dedupe(listings []models.Listing) []models.Listing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]models.Listing, 0, len(listings))
	for i := len(listings) - 1; i >= 0; i-- {
		if _, ok := seen[listings[i].ID]; ok {
			continue
		}
		seen[listings[i].ID] = struct{}{}
		out = append(out, listings[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
