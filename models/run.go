package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindListings     RunKind = "listings"
	RunKindTransactions RunKind = "transactions"
	RunKindCompaction   RunKind = "compaction"
)

type PollRun struct {
	ID           int64      `json:"id" db:"id"`
	RunKey       string     `json:"run_key" db:"run_key"`
	Kind         RunKind    `json:"kind" db:"kind"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Status       RunStatus  `json:"status" db:"status"`
	PagesOK      int        `json:"pages_ok" db:"pages_ok"`
	PagesFailed  int        `json:"pages_failed" db:"pages_failed"`
	ListingsSeen int        `json:"listings_seen" db:"listings_seen"`
	NewListings  int        `json:"new_listings" db:"new_listings"`
	PriceChanges int        `json:"price_changes" db:"price_changes"`
	Removed      int        `json:"removed" db:"removed"`
	Sold         int        `json:"sold" db:"sold"`
	Transactions int        `json:"transactions" db:"transactions"`
	Anomalies    int        `json:"anomalies" db:"anomalies"`
	ErrorsCount  int        `json:"errors_count" db:"errors_count"`
}

// Count tallies events by type into the run counters.
func (r *PollRun) Count(events []Event) {
	for _, e := range events {
		switch e.Type {
		case EventNewListing:
			r.NewListings++
		case EventPriceChange:
			r.PriceChanges++
		case EventRemoved:
			r.Removed++
		case EventSold:
			r.Sold++
		case EventTransaction:
			r.Transactions++
		}
	}
}
