package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"ah_scanner/models"
)

type SQLiteStore struct {
	db  *sql.DB
	wmu sync.Mutex // one write transaction at a time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, wrapSQLite("migrate", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		price REAL NOT NULL,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL DEFAULT '',
		time_left INTEGER NOT NULL DEFAULT 0,
		seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		price REAL NOT NULL,
		seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		sold_at_ms INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		price REAL NOT NULL,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL,
		PRIMARY KEY (sold_at_ms, item_id, seller_uuid)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		ts INTEGER NOT NULL,
		listing_id TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		price REAL NOT NULL,
		previous_price REAL,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 1,
		time_left INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rollups_daily (
		date TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		median REAL NOT NULL,
		p25 REAL NOT NULL,
		p75 REAL NOT NULL,
		count INTEGER NOT NULL,
		computed_at INTEGER NOT NULL,
		PRIMARY KEY (date, item_id, item_name)
	);

	CREATE TABLE IF NOT EXISTS poll_runs (
		id INTEGER PRIMARY KEY,
		run_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		pages_ok INTEGER DEFAULT 0,
		pages_failed INTEGER DEFAULT 0,
		listings_seen INTEGER DEFAULT 0,
		new_listings INTEGER DEFAULT 0,
		price_changes INTEGER DEFAULT 0,
		removed INTEGER DEFAULT 0,
		sold INTEGER DEFAULT 0,
		transactions INTEGER DEFAULT 0,
		anomalies INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS poll_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_item ON events(item_id, ts);
	CREATE INDEX IF NOT EXISTS idx_listings_seen ON listings(seen_at);
	CREATE INDEX IF NOT EXISTS idx_prices_seen ON prices(seen_at);
	CREATE INDEX IF NOT EXISTS idx_prices_item ON prices(item_id, seen_at);
	CREATE INDEX IF NOT EXISTS idx_rollups_item ON rollups_daily(item_id, date);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON poll_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON poll_runs(kind, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// wrapSQLite tags corruption so callers can stop instead of writing on.
func wrapSQLite(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	corrupt := errors.As(err, &se) && (se.Code == sqlite3.ErrCorrupt || se.Code == sqlite3.ErrNotADB)
	return &StoreError{Op: op, Err: err, Corrupt: corrupt}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLite(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return wrapSQLite(op, err)
	}
	return wrapSQLite(op, tx.Commit())
}

// =============================================================================
// Writes
// =============================================================================

const (
	sqliteUpsertListing = `
		INSERT INTO listings (id, item_id, item_name, count, price, seller_name, seller_uuid, time_left, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_id = excluded.item_id,
			item_name = excluded.item_name,
			count = excluded.count,
			price = excluded.price,
			seller_name = excluded.seller_name,
			seller_uuid = excluded.seller_uuid,
			time_left = excluded.time_left,
			seen_at = excluded.seen_at`

	sqliteInsertPrice = `INSERT INTO prices (item_id, item_name, price, seen_at) VALUES (?, ?, ?, ?)`

	sqliteInsertEvent = `
		INSERT INTO events (type, ts, listing_id, item_id, item_name, price, previous_price, seller_name, seller_uuid, count, time_left)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteInsertTransaction = `
		INSERT INTO transactions (sold_at_ms, item_id, item_name, count, price, seller_name, seller_uuid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sold_at_ms, item_id, seller_uuid) DO NOTHING`

	sqliteUpsertRollup = `
		INSERT INTO rollups_daily (date, item_id, item_name, median, p25, p75, count, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, item_id, item_name) DO UPDATE SET
			median = excluded.median,
			p25 = excluded.p25,
			p75 = excluded.p75,
			count = excluded.count,
			computed_at = excluded.computed_at`
)

func insertEvent(ctx context.Context, ex execer, e *models.Event) error {
	res, err := ex.ExecContext(ctx, sqliteInsertEvent,
		string(e.Type), e.TS, e.ListingID, e.ItemID, e.ItemName, e.Price, e.PreviousPrice,
		e.SellerName, e.SellerUUID, e.Count, e.TimeLeft)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func upsertListing(ctx context.Context, ex execer, l *models.Listing) error {
	_, err := ex.ExecContext(ctx, sqliteUpsertListing,
		l.ID, l.ItemID, l.ItemName, l.Count, l.Price, l.SellerName, l.SellerUUID, l.TimeLeft, l.SeenAt)
	return err
}

func insertPrice(ctx context.Context, ex execer, itemID, itemName string, price float64, seenAt int64) error {
	_, err := ex.ExecContext(ctx, sqliteInsertPrice, itemID, itemName, price, seenAt)
	return err
}

func upsertTransaction(ctx context.Context, ex execer, t *models.Transaction) (bool, error) {
	res, err := ex.ExecContext(ctx, sqliteInsertTransaction,
		t.SoldAtMs, t.ItemID, t.ItemName, t.Count, t.Price, t.SellerName, t.SellerUUID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *models.Event) error {
	return s.withTx(ctx, "append event", func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, e)
	})
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	return s.withTx(ctx, "upsert listing", func(tx *sql.Tx) error {
		return upsertListing(ctx, tx, l)
	})
}

func (s *SQLiteStore) InsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	return s.withTx(ctx, "insert price point", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqliteInsertPrice, p.ItemID, p.ItemName, p.Price, p.SeenAt)
		if err != nil {
			return err
		}
		if id, err := res.LastInsertId(); err == nil {
			p.ID = id
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertTransaction(ctx context.Context, t *models.Transaction) (bool, error) {
	var inserted bool
	err := s.withTx(ctx, "upsert transaction", func(tx *sql.Tx) error {
		var err error
		inserted, err = upsertTransaction(ctx, tx, t)
		return err
	})
	return inserted, err
}

func (s *SQLiteStore) PersistCycle(ctx context.Context, b *models.CycleBatch) error {
	return s.withTx(ctx, "persist cycle", func(tx *sql.Tx) error {
		for i := range b.Listings {
			l := &b.Listings[i]
			if err := upsertListing(ctx, tx, l); err != nil {
				return err
			}
			if err := insertPrice(ctx, tx, l.ItemID, l.ItemName, l.Price, l.SeenAt); err != nil {
				return err
			}
		}
		for _, id := range b.Vanished {
			if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE seen_at < ?`, b.ObservedAt); err != nil {
			return err
		}
		for i := range b.Carried {
			if err := upsertListing(ctx, tx, &b.Carried[i]); err != nil {
				return err
			}
		}
		for i := range b.Events {
			if err := insertEvent(ctx, tx, &b.Events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ImportTransactions(ctx context.Context, txs []models.Transaction, ts int64) ([]models.Transaction, error) {
	var inserted []models.Transaction
	err := s.withTx(ctx, "import transactions", func(tx *sql.Tx) error {
		inserted = inserted[:0]
		for i := range txs {
			ok, err := upsertTransaction(ctx, tx, &txs[i])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			e := txs[i].Event(ts)
			if err := insertEvent(ctx, tx, &e); err != nil {
				return err
			}
			inserted = append(inserted, txs[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *SQLiteStore) WriteRollups(ctx context.Context, rollups []models.DailyRollup) error {
	now := time.Now().UnixMilli()
	return s.withTx(ctx, "write rollups", func(tx *sql.Tx) error {
		for _, r := range rollups {
			if _, err := tx.ExecContext(ctx, sqliteUpsertRollup,
				r.Date, r.ItemID, r.ItemName, r.Median, r.P25, r.P75, r.Count, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) PurgeDay(ctx context.Context, day models.Day) (int64, int64, error) {
	var events, prices int64
	err := s.withTx(ctx, "purge day", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE ts >= ? AND ts < ?`, day.StartMillis(), day.EndMillis())
		if err != nil {
			return err
		}
		events, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM prices WHERE seen_at >= ? AND seen_at < ?`, day.StartMillis(), day.EndMillis())
		if err != nil {
			return err
		}
		prices, _ = res.RowsAffected()
		return nil
	})
	return events, prices, err
}

// =============================================================================
// Reads
// =============================================================================

const eventColumns = `id, type, ts, listing_id, item_id, item_name, price, previous_price, seller_name, seller_uuid, count, time_left`

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()
	var events []models.Event
	for rows.Next() {
		var e models.Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.TS, &e.ListingID, &e.ItemID, &e.ItemName, &e.Price,
			&e.PreviousPrice, &e.SellerName, &e.SellerUUID, &e.Count, &e.TimeLeft); err != nil {
			return nil, err
		}
		e.Type = models.EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) queryEvents(ctx context.Context, op, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLite(op, err)
	}
	events, err := scanEvents(rows)
	return events, wrapSQLite(op, err)
}

func (s *SQLiteStore) EventsSince(ctx context.Context, since int64, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEvents(ctx, "events since",
		`SELECT `+eventColumns+` FROM events WHERE ts >= ? ORDER BY ts DESC, id DESC LIMIT ?`, since, limit)
}

func (s *SQLiteStore) EventsForItem(ctx context.Context, itemID string, since int64) ([]models.Event, error) {
	return s.queryEvents(ctx, "events for item",
		`SELECT `+eventColumns+` FROM events WHERE item_id = ? AND ts >= ? ORDER BY ts, id`, itemID, since)
}

func (s *SQLiteStore) EventsInRange(ctx context.Context, from, to int64) ([]models.Event, error) {
	return s.queryEvents(ctx, "events in range",
		`SELECT `+eventColumns+` FROM events WHERE ts >= ? AND ts < ? ORDER BY ts, id`, from, to)
}

func (s *SQLiteStore) ListingsSeenSince(ctx context.Context, since int64) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, item_name, count, price, seller_name, seller_uuid, time_left, seen_at
		FROM listings WHERE seen_at >= ? ORDER BY seen_at DESC, id`, since)
	if err != nil {
		return nil, wrapSQLite("listings seen since", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.ItemID, &l.ItemName, &l.Count, &l.Price,
			&l.SellerName, &l.SellerUUID, &l.TimeLeft, &l.SeenAt); err != nil {
			return nil, wrapSQLite("listings seen since", err)
		}
		listings = append(listings, l)
	}
	return listings, wrapSQLite("listings seen since", rows.Err())
}

func (s *SQLiteStore) DistinctItems(ctx context.Context, since int64) ([]models.ItemRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_name, COUNT(*) FROM events
		WHERE ts >= ? GROUP BY item_id, item_name ORDER BY item_name`, since)
	if err != nil {
		return nil, wrapSQLite("distinct items", err)
	}
	defer rows.Close()

	var items []models.ItemRef
	for rows.Next() {
		var it models.ItemRef
		if err := rows.Scan(&it.ItemID, &it.ItemName, &it.Observations); err != nil {
			return nil, wrapSQLite("distinct items", err)
		}
		items = append(items, it)
	}
	return items, wrapSQLite("distinct items", rows.Err())
}

func (s *SQLiteStore) GetRollups(ctx context.Context, from, to, itemID string) ([]models.DailyRollup, error) {
	var (
		where []string
		args  []any
	)
	if from != "" {
		where = append(where, "date >= ?")
		args = append(args, from)
	}
	if to != "" {
		where = append(where, "date <= ?")
		args = append(args, to)
	}
	if itemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, itemID)
	}
	query := `SELECT date, item_id, item_name, median, p25, p75, count FROM rollups_daily`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, item_id, item_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLite("get rollups", err)
	}
	defer rows.Close()

	var rollups []models.DailyRollup
	for rows.Next() {
		var r models.DailyRollup
		if err := rows.Scan(&r.Date, &r.ItemID, &r.ItemName, &r.Median, &r.P25, &r.P75, &r.Count); err != nil {
			return nil, wrapSQLite("get rollups", err)
		}
		rollups = append(rollups, r)
	}
	return rollups, wrapSQLite("get rollups", rows.Err())
}

func (s *SQLiteStore) RollupTotals(ctx context.Context, date string) (int, int, error) {
	var rows, events int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(count), 0) FROM rollups_daily WHERE date = ?`, date).Scan(&rows, &events)
	return rows, events, wrapSQLite("rollup totals", err)
}

func (s *SQLiteStore) RawDaysBefore(ctx context.Context, before int64) ([]models.Day, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts / 86400000 AS day FROM events WHERE ts >= 0 AND ts < ?
		UNION
		SELECT seen_at / 86400000 FROM prices WHERE seen_at >= 0 AND seen_at < ?
		ORDER BY day`, before, before)
	if err != nil {
		return nil, wrapSQLite("raw days", err)
	}
	defer rows.Close()

	var days []models.Day
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, wrapSQLite("raw days", err)
		}
		days = append(days, models.Day(d))
	}
	return days, wrapSQLite("raw days", rows.Err())
}

func (s *SQLiteStore) GlobalStats(ctx context.Context, now int64) (*models.GlobalStats, error) {
	var (
		st           models.GlobalStats
		minTS, maxTS sql.NullInt64
		firstRollup  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM (SELECT item_id FROM events UNION SELECT item_id FROM rollups_daily)),
			(SELECT COUNT(*) FROM events WHERE ts >= ?),
			(SELECT COUNT(*) FROM rollups_daily),
			(SELECT MIN(ts) FROM events),
			(SELECT MAX(ts) FROM events),
			(SELECT MIN(date) FROM rollups_daily)`, now-int64(time.Hour/time.Millisecond)).Scan(
		&st.TotalEvents, &st.TotalListings, &st.TotalTransactions, &st.UniqueItems,
		&st.EventsLastHour, &st.TotalRollups, &minTS, &maxTS, &firstRollup)
	if err != nil {
		return nil, wrapSQLite("global stats", err)
	}

	st.DataSpanHours = dataSpanHours(minTS, maxTS, firstRollup)
	return &st, nil
}

// dataSpanHours measures from the oldest retained data (raw or rolled up) to the newest event.
func dataSpanHours(minTS, maxTS sql.NullInt64, firstRollup sql.NullString) float64 {
	if !maxTS.Valid {
		return 0
	}
	start := minTS.Int64
	if firstRollup.Valid {
		if t, err := time.Parse(models.DayLayout, firstRollup.String); err == nil && t.UnixMilli() < start {
			start = t.UnixMilli()
		}
	}
	return float64(maxTS.Int64-start) / float64(time.Hour/time.Millisecond)
}

// =============================================================================
// Runs, logs and commands
// =============================================================================

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.PollRun) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create run", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO poll_runs (run_key, kind, started_at, status)
			VALUES (?, ?, ?, ?)`, run.RunKey, string(run.Kind), run.StartedAt, string(run.Status))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.PollRun) error {
	return s.withTx(ctx, "update run", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE poll_runs SET finished_at = ?, status = ?, pages_ok = ?, pages_failed = ?,
				listings_seen = ?, new_listings = ?, price_changes = ?, removed = ?, sold = ?,
				transactions = ?, anomalies = ?, errors_count = ?
			WHERE id = ?`,
			run.FinishedAt, string(run.Status), run.PagesOK, run.PagesFailed,
			run.ListingsSeen, run.NewListings, run.PriceChanges, run.Removed, run.Sold,
			run.Transactions, run.Anomalies, run.ErrorsCount, run.ID)
		return err
	})
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]models.PollRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_key, kind, started_at, finished_at, status, pages_ok, pages_failed,
			listings_seen, new_listings, price_changes, removed, sold, transactions, anomalies, errors_count
		FROM poll_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapSQLite("recent runs", err)
	}
	defer rows.Close()

	var runs []models.PollRun
	for rows.Next() {
		var r models.PollRun
		var kind, status string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.RunKey, &kind, &r.StartedAt, &finished, &status, &r.PagesOK, &r.PagesFailed,
			&r.ListingsSeen, &r.NewListings, &r.PriceChanges, &r.Removed, &r.Sold, &r.Transactions,
			&r.Anomalies, &r.ErrorsCount); err != nil {
			return nil, wrapSQLite("recent runs", err)
		}
		r.Kind = models.RunKind(kind)
		r.Status = models.RunStatus(status)
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, wrapSQLite("recent runs", rows.Err())
}

func (s *SQLiteStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, source string) error {
	return s.withTx(ctx, "log", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poll_logs (run_id, timestamp, level, message, source)
			VALUES (?, ?, ?, ?, ?)`, runID, time.Now(), string(level), message, source)
		return err
	})
}

func (s *SQLiteStore) EnqueueCommand(ctx context.Context, cmd models.CommandType, params json.RawMessage) (int64, error) {
	var id int64
	err := s.withTx(ctx, "enqueue command", func(tx *sql.Tx) error {
		var p any
		if len(params) > 0 {
			p = string(params)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
			string(cmd), p, time.Now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, params, created_at
		FROM commands WHERE processed_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, wrapSQLite("pending commands", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var c models.Command
		var command string
		var params sql.NullString
		if err := rows.Scan(&c.ID, &command, &params, &c.CreatedAt); err != nil {
			return nil, wrapSQLite("pending commands", err)
		}
		c.Command = models.CommandType(command)
		if params.Valid {
			c.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, c)
	}
	return cmds, wrapSQLite("pending commands", rows.Err())
}

func (s *SQLiteStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	return s.withTx(ctx, "mark command processed", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
		return err
	})
}
