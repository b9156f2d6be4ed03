package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ah_scanner/analytics"
	"ah_scanner/models"
	"ah_scanner/observability"
	"ah_scanner/storage"
)

// Compactor folds whole days of raw events into daily per-item rollups and
// then deletes the raw rows. A day's raw data is only deleted after its
// rollups are committed and read back.
type Compactor struct {
	store         storage.EventStore
	retentionDays int
	metrics       *observability.Metrics
	now           func() time.Time
}

type CompactionResult struct {
	Days           []string `json:"days"`
	RollupsWritten int      `json:"rollups_written"`
	EventsPurged   int64    `json:"events_purged"`
	PricesPurged   int64    `json:"prices_purged"`
}

func NewCompactor(store storage.EventStore, retentionDays int, metrics *observability.Metrics) *Compactor {
	return &Compactor{
		store:         store,
		retentionDays: retentionDays,
		metrics:       metrics,
		now:           time.Now,
	}
}

// WithClock replaces the wall clock, for simulations.
func (c *Compactor) WithClock(now func() time.Time) *Compactor {
	c.now = now
	return c
}

// LastEligibleDay is the newest day that may be compacted at now: never today,
// and never a day that starts inside the retention window.
func LastEligibleDay(now time.Time, retentionDays int) models.Day {
	nowMs := now.UnixMilli()
	today := models.DayOf(nowMs)
	cutoff := models.DayOf(nowMs - int64(retentionDays)*24*time.Hour.Milliseconds())
	if cutoff > today-1 {
		return today - 1
	}
	return cutoff
}

func (c *Compactor) Run(ctx context.Context) (*CompactionResult, error) {
	start := time.Now()
	res := &CompactionResult{}

	last := LastEligibleDay(c.now(), c.retentionDays)
	days, err := c.store.RawDaysBefore(ctx, last.EndMillis())
	if err != nil {
		c.metrics.ObserveCompaction("failed", 0, 0, 0)
		return res, fmt.Errorf("list raw days: %w", err)
	}
	if len(days) == 0 {
		c.metrics.ObserveCompaction("noop", 0, 0, 0)
		return res, nil
	}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			c.metrics.ObserveCompaction("partial", len(res.Days), res.EventsPurged, res.PricesPurged)
			return res, err
		}
		written, events, prices, err := c.compactDay(ctx, day)
		if err != nil {
			c.metrics.ObserveCompaction("failed", len(res.Days), res.EventsPurged, res.PricesPurged)
			return res, fmt.Errorf("compact %s: %w", day, err)
		}
		res.Days = append(res.Days, day.String())
		res.RollupsWritten += written
		res.EventsPurged += events
		res.PricesPurged += prices
	}

	slog.Info("compaction finished",
		"days", len(res.Days), "rollups", res.RollupsWritten,
		"events_purged", res.EventsPurged, "prices_purged", res.PricesPurged,
		"took", time.Since(start).Round(time.Millisecond))
	c.metrics.ObserveCompaction("completed", len(res.Days), res.EventsPurged, res.PricesPurged)
	return res, nil
}

func (c *Compactor) compactDay(ctx context.Context, day models.Day) (int, int64, int64, error) {
	events, err := c.store.EventsInRange(ctx, day.StartMillis(), day.EndMillis())
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read events: %w", err)
	}

	rollups := BuildRollups(day, events)
	if len(rollups) > 0 {
		if err := c.store.WriteRollups(ctx, rollups); err != nil {
			return 0, 0, 0, fmt.Errorf("write rollups: %w", err)
		}
	}

	rows, total, err := c.store.RollupTotals(ctx, day.String())
	if err != nil {
		return 0, 0, 0, fmt.Errorf("verify rollups: %w", err)
	}
	if rows < len(rollups) || total < len(events) {
		return 0, 0, 0, fmt.Errorf("verify rollups: have %d rows covering %d events, want %d covering %d",
			rows, total, len(rollups), len(events))
	}

	purgedEvents, purgedPrices, err := c.store.PurgeDay(ctx, day)
	if err != nil {
		return len(rollups), 0, 0, fmt.Errorf("purge: %w", err)
	}
	slog.Debug("day compacted", "day", day.String(), "events", len(events), "rollups", len(rollups))
	return len(rollups), purgedEvents, purgedPrices, nil
}

type rollupKey struct {
	itemID   string
	itemName string
}

// BuildRollups groups a day's events by item and summarizes their prices.
// Output is ordered by item id then name.
func BuildRollups(day models.Day, events []models.Event) []models.DailyRollup {
	groups := make(map[rollupKey][]float64)
	for _, e := range events {
		k := rollupKey{e.ItemID, e.ItemName}
		groups[k] = append(groups[k], e.Price)
	}

	rollups := make([]models.DailyRollup, 0, len(groups))
	for k, prices := range groups {
		p25, median, p75 := analytics.Quartiles(prices)
		rollups = append(rollups, models.DailyRollup{
			Date:     day.String(),
			ItemID:   k.itemID,
			ItemName: k.itemName,
			Median:   median,
			P25:      p25,
			P75:      p75,
			Count:    len(prices),
		})
	}
	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].ItemID != rollups[j].ItemID {
			return rollups[i].ItemID < rollups[j].ItemID
		}
		return rollups[i].ItemName < rollups[j].ItemName
	})
	return rollups
}
