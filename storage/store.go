package storage

import (
	"context"
	"encoding/json"

	"ah_scanner/models"
)

// EventStore is the time-series store behind ingestion, compaction and analytics.
// Writes are serialized; reads may run concurrently with them.
type EventStore interface {
	AppendEvent(ctx context.Context, e *models.Event) error
	UpsertListing(ctx context.Context, l *models.Listing) error
	InsertPricePoint(ctx context.Context, p *models.PricePoint) error
	// UpsertTransaction reports whether the natural key was new.
	UpsertTransaction(ctx context.Context, t *models.Transaction) (bool, error)

	// PersistCycle writes one poll cycle atomically: listings, price points,
	// listing removals and events.
	PersistCycle(ctx context.Context, b *models.CycleBatch) error
	// ImportTransactions upserts txs and appends a transaction event stamped ts
	// for each one not seen before. It returns the new ones.
	ImportTransactions(ctx context.Context, txs []models.Transaction, ts int64) ([]models.Transaction, error)

	// EventsSince returns events with ts >= since, newest first. limit <= 0 means all.
	EventsSince(ctx context.Context, since int64, limit int) ([]models.Event, error)
	EventsForItem(ctx context.Context, itemID string, since int64) ([]models.Event, error)
	// EventsInRange returns events with from <= ts < to in insertion order.
	EventsInRange(ctx context.Context, from, to int64) ([]models.Event, error)
	ListingsSeenSince(ctx context.Context, since int64) ([]models.Listing, error)
	DistinctItems(ctx context.Context, since int64) ([]models.ItemRef, error)

	// GetRollups filters by inclusive date bounds and item id; empty strings match all.
	GetRollups(ctx context.Context, from, to, itemID string) ([]models.DailyRollup, error)
	WriteRollups(ctx context.Context, rollups []models.DailyRollup) error
	// RollupTotals returns the number of rollup rows for a date and the sum of their counts.
	RollupTotals(ctx context.Context, date string) (rows int, events int, err error)

	// RawDaysBefore lists the days holding events or price points before the
	// given time, oldest first.
	RawDaysBefore(ctx context.Context, before int64) ([]models.Day, error)
	PurgeDay(ctx context.Context, day models.Day) (events int64, prices int64, err error)

	GlobalStats(ctx context.Context, now int64) (*models.GlobalStats, error)
}

// OpsStore holds the operational tables: run records, run logs and operator commands.
type OpsStore interface {
	CreateRun(ctx context.Context, run *models.PollRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.PollRun) error
	RecentRuns(ctx context.Context, limit int) ([]models.PollRun, error)
	Log(ctx context.Context, runID *int64, level models.LogLevel, message, source string) error

	EnqueueCommand(ctx context.Context, cmd models.CommandType, params json.RawMessage) (int64, error)
	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error
}

type Store interface {
	EventStore
	OpsStore
	Close() error
}
