package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ah_scanner/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	wmu  sync.Mutex
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, wrapPostgres("migrate", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		price DOUBLE PRECISION NOT NULL,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL DEFAULT '',
		time_left BIGINT NOT NULL DEFAULT 0,
		seen_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prices (
		id BIGSERIAL PRIMARY KEY,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		seen_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		sold_at_ms BIGINT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		price DOUBLE PRECISION NOT NULL,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL,
		PRIMARY KEY (sold_at_ms, item_id, seller_uuid)
	);

	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		ts BIGINT NOT NULL,
		listing_id TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		previous_price DOUBLE PRECISION,
		seller_name TEXT NOT NULL DEFAULT '',
		seller_uuid TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 1,
		time_left BIGINT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rollups_daily (
		date TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		median DOUBLE PRECISION NOT NULL,
		p25 DOUBLE PRECISION NOT NULL,
		p75 DOUBLE PRECISION NOT NULL,
		count INTEGER NOT NULL,
		computed_at BIGINT NOT NULL,
		PRIMARY KEY (date, item_id, item_name)
	);

	CREATE TABLE IF NOT EXISTS poll_runs (
		id BIGSERIAL PRIMARY KEY,
		run_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
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
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT,
		timestamp TIMESTAMPTZ,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		command TEXT,
		params JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_item ON events(item_id, ts);
	CREATE INDEX IF NOT EXISTS idx_listings_seen ON listings(seen_at);
	CREATE INDEX IF NOT EXISTS idx_prices_seen ON prices(seen_at);
	CREATE INDEX IF NOT EXISTS idx_prices_item ON prices(item_id, seen_at);
	CREATE INDEX IF NOT EXISTS idx_rollups_item ON rollups_daily(item_id, date);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// XX001 data_corrupted, XX002 index_corrupted
func wrapPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	corrupt := errors.As(err, &pgErr) && (pgErr.Code == "XX001" || pgErr.Code == "XX002")
	return &StoreError{Op: op, Err: err, Corrupt: corrupt}
}

func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return wrapPostgres(op, pgx.BeginFunc(ctx, s.pool, fn))
}

// =============================================================================
// Writes
// =============================================================================

const (
	pgUpsertListing = `
		INSERT INTO listings (id, item_id, item_name, count, price, seller_name, seller_uuid, time_left, seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			item_name = EXCLUDED.item_name,
			count = EXCLUDED.count,
			price = EXCLUDED.price,
			seller_name = EXCLUDED.seller_name,
			seller_uuid = EXCLUDED.seller_uuid,
			time_left = EXCLUDED.time_left,
			seen_at = EXCLUDED.seen_at`

	pgInsertPrice = `INSERT INTO prices (item_id, item_name, price, seen_at) VALUES ($1, $2, $3, $4) RETURNING id`

	pgInsertEvent = `
		INSERT INTO events (type, ts, listing_id, item_id, item_name, price, previous_price, seller_name, seller_uuid, count, time_left)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	pgInsertTransaction = `
		INSERT INTO transactions (sold_at_ms, item_id, item_name, count, price, seller_name, seller_uuid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sold_at_ms, item_id, seller_uuid) DO NOTHING`

	pgUpsertRollup = `
		INSERT INTO rollups_daily (date, item_id, item_name, median, p25, p75, count, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (date, item_id, item_name) DO UPDATE SET
			median = EXCLUDED.median,
			p25 = EXCLUDED.p25,
			p75 = EXCLUDED.p75,
			count = EXCLUDED.count,
			computed_at = EXCLUDED.computed_at`
)

func eventArgs(e *models.Event) []any {
	return []any{string(e.Type), e.TS, e.ListingID, e.ItemID, e.ItemName, e.Price, e.PreviousPrice,
		e.SellerName, e.SellerUUID, e.Count, e.TimeLeft}
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *models.Event) error {
	return s.withTx(ctx, "append event", func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, pgInsertEvent, eventArgs(e)...).Scan(&e.ID)
	})
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	return s.withTx(ctx, "upsert listing", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, pgUpsertListing,
			l.ID, l.ItemID, l.ItemName, l.Count, l.Price, l.SellerName, l.SellerUUID, l.TimeLeft, l.SeenAt)
		return err
	})
}

func (s *PostgresStore) InsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	return s.withTx(ctx, "insert price point", func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, pgInsertPrice, p.ItemID, p.ItemName, p.Price, p.SeenAt).Scan(&p.ID)
	})
}

func (s *PostgresStore) UpsertTransaction(ctx context.Context, t *models.Transaction) (bool, error) {
	var inserted bool
	err := s.withTx(ctx, "upsert transaction", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, pgInsertTransaction,
			t.SoldAtMs, t.ItemID, t.ItemName, t.Count, t.Price, t.SellerName, t.SellerUUID)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

func (s *PostgresStore) PersistCycle(ctx context.Context, b *models.CycleBatch) error {
	return s.withTx(ctx, "persist cycle", func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := range b.Listings {
			l := &b.Listings[i]
			batch.Queue(pgUpsertListing,
				l.ID, l.ItemID, l.ItemName, l.Count, l.Price, l.SellerName, l.SellerUUID, l.TimeLeft, l.SeenAt)
			batch.Queue(pgInsertPrice, l.ItemID, l.ItemName, l.Price, l.SeenAt)
		}
		if len(b.Vanished) > 0 {
			batch.Queue(`DELETE FROM listings WHERE id = ANY($1)`, b.Vanished)
		}
		batch.Queue(`DELETE FROM listings WHERE seen_at < $1`, b.ObservedAt)
		for i := range b.Carried {
			l := &b.Carried[i]
			batch.Queue(pgUpsertListing,
				l.ID, l.ItemID, l.ItemName, l.Count, l.Price, l.SellerName, l.SellerUUID, l.TimeLeft, l.SeenAt)
		}
		for i := range b.Events {
			e := &b.Events[i]
			batch.Queue(pgInsertEvent, eventArgs(e)...).QueryRow(func(row pgx.Row) error {
				return row.Scan(&e.ID)
			})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) ImportTransactions(ctx context.Context, txs []models.Transaction, ts int64) ([]models.Transaction, error) {
	var inserted []models.Transaction
	err := s.withTx(ctx, "import transactions", func(tx pgx.Tx) error {
		inserted = inserted[:0]
		for i := range txs {
			t := &txs[i]
			tag, err := tx.Exec(ctx, pgInsertTransaction,
				t.SoldAtMs, t.ItemID, t.ItemName, t.Count, t.Price, t.SellerName, t.SellerUUID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				continue
			}
			e := t.Event(ts)
			if err := tx.QueryRow(ctx, pgInsertEvent, eventArgs(&e)...).Scan(&e.ID); err != nil {
				return err
			}
			inserted = append(inserted, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *PostgresStore) WriteRollups(ctx context.Context, rollups []models.DailyRollup) error {
	now := time.Now().UnixMilli()
	return s.withTx(ctx, "write rollups", func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rollups {
			batch.Queue(pgUpsertRollup, r.Date, r.ItemID, r.ItemName, r.Median, r.P25, r.P75, r.Count, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) PurgeDay(ctx context.Context, day models.Day) (int64, int64, error) {
	var events, prices int64
	err := s.withTx(ctx, "purge day", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM events WHERE ts >= $1 AND ts < $2`, day.StartMillis(), day.EndMillis())
		if err != nil {
			return err
		}
		events = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM prices WHERE seen_at >= $1 AND seen_at < $2`, day.StartMillis(), day.EndMillis())
		if err != nil {
			return err
		}
		prices = tag.RowsAffected()
		return nil
	})
	return events, prices, err
}

// =============================================================================
// Reads
// =============================================================================

func (s *PostgresStore) queryEvents(ctx context.Context, op, query string, args ...any) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapPostgres(op, err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.TS, &e.ListingID, &e.ItemID, &e.ItemName, &e.Price,
			&e.PreviousPrice, &e.SellerName, &e.SellerUUID, &e.Count, &e.TimeLeft); err != nil {
			return nil, wrapPostgres(op, err)
		}
		e.Type = models.EventType(typ)
		events = append(events, e)
	}
	return events, wrapPostgres(op, rows.Err())
}

func (s *PostgresStore) EventsSince(ctx context.Context, since int64, limit int) ([]models.Event, error) {
	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}
	return s.queryEvents(ctx, "events since",
		`SELECT `+eventColumns+` FROM events WHERE ts >= $1 ORDER BY ts DESC, id DESC LIMIT $2`, since, lim)
}

func (s *PostgresStore) EventsForItem(ctx context.Context, itemID string, since int64) ([]models.Event, error) {
	return s.queryEvents(ctx, "events for item",
		`SELECT `+eventColumns+` FROM events WHERE item_id = $1 AND ts >= $2 ORDER BY ts, id`, itemID, since)
}

func (s *PostgresStore) EventsInRange(ctx context.Context, from, to int64) ([]models.Event, error) {
	return s.queryEvents(ctx, "events in range",
		`SELECT `+eventColumns+` FROM events WHERE ts >= $1 AND ts < $2 ORDER BY ts, id`, from, to)
}

func (s *PostgresStore) ListingsSeenSince(ctx context.Context, since int64) ([]models.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_id, item_name, count, price, seller_name, seller_uuid, time_left, seen_at
		FROM listings WHERE seen_at >= $1 ORDER BY seen_at DESC, id`, since)
	if err != nil {
		return nil, wrapPostgres("listings seen since", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.ItemID, &l.ItemName, &l.Count, &l.Price,
			&l.SellerName, &l.SellerUUID, &l.TimeLeft, &l.SeenAt); err != nil {
			return nil, wrapPostgres("listings seen since", err)
		}
		listings = append(listings, l)
	}
	return listings, wrapPostgres("listings seen since", rows.Err())
}

func (s *PostgresStore) DistinctItems(ctx context.Context, since int64) ([]models.ItemRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id, item_name, COUNT(*) FROM events
		WHERE ts >= $1 GROUP BY item_id, item_name ORDER BY item_name`, since)
	if err != nil {
		return nil, wrapPostgres("distinct items", err)
	}
	defer rows.Close()

	var items []models.ItemRef
	for rows.Next() {
		var it models.ItemRef
		var n int64
		if err := rows.Scan(&it.ItemID, &it.ItemName, &n); err != nil {
			return nil, wrapPostgres("distinct items", err)
		}
		it.Observations = int(n)
		items = append(items, it)
	}
	return items, wrapPostgres("distinct items", rows.Err())
}

func (s *PostgresStore) GetRollups(ctx context.Context, from, to, itemID string) ([]models.DailyRollup, error) {
	var (
		where []string
		args  []any
	)
	if from != "" {
		args = append(args, from)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if to != "" {
		args = append(args, to)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if itemID != "" {
		args = append(args, itemID)
		where = append(where, fmt.Sprintf("item_id = $%d", len(args)))
	}
	query := `SELECT date, item_id, item_name, median, p25, p75, count FROM rollups_daily`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, item_id, item_name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapPostgres("get rollups", err)
	}
	defer rows.Close()

	var rollups []models.DailyRollup
	for rows.Next() {
		var r models.DailyRollup
		if err := rows.Scan(&r.Date, &r.ItemID, &r.ItemName, &r.Median, &r.P25, &r.P75, &r.Count); err != nil {
			return nil, wrapPostgres("get rollups", err)
		}
		rollups = append(rollups, r)
	}
	return rollups, wrapPostgres("get rollups", rows.Err())
}

func (s *PostgresStore) RollupTotals(ctx context.Context, date string) (int, int, error) {
	var rows, events int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(count), 0) FROM rollups_daily WHERE date = $1`, date).Scan(&rows, &events)
	return int(rows), int(events), wrapPostgres("rollup totals", err)
}

func (s *PostgresStore) RawDaysBefore(ctx context.Context, before int64) ([]models.Day, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts / 86400000 AS day FROM events WHERE ts >= 0 AND ts < $1
		UNION
		SELECT seen_at / 86400000 FROM prices WHERE seen_at >= 0 AND seen_at < $1
		ORDER BY day`, before)
	if err != nil {
		return nil, wrapPostgres("raw days", err)
	}
	defer rows.Close()

	var days []models.Day
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, wrapPostgres("raw days", err)
		}
		days = append(days, models.Day(d))
	}
	return days, wrapPostgres("raw days", rows.Err())
}

func (s *PostgresStore) GlobalStats(ctx context.Context, now int64) (*models.GlobalStats, error) {
	var (
		st           models.GlobalStats
		minTS, maxTS *int64
		firstRollup  *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM (SELECT item_id FROM events UNION SELECT item_id FROM rollups_daily) u),
			(SELECT COUNT(*) FROM events WHERE ts >= $1),
			(SELECT COUNT(*) FROM rollups_daily),
			(SELECT MIN(ts) FROM events),
			(SELECT MAX(ts) FROM events),
			(SELECT MIN(date) FROM rollups_daily)`, now-time.Hour.Milliseconds()).Scan(
		&st.TotalEvents, &st.TotalListings, &st.TotalTransactions, &st.UniqueItems,
		&st.EventsLastHour, &st.TotalRollups, &minTS, &maxTS, &firstRollup)
	if err != nil {
		return nil, wrapPostgres("global stats", err)
	}

	if maxTS != nil {
		start := *minTS
		if firstRollup != nil {
			if t, err := time.Parse(models.DayLayout, *firstRollup); err == nil && t.UnixMilli() < start {
				start = t.UnixMilli()
			}
		}
		st.DataSpanHours = float64(*maxTS-start) / float64(time.Hour.Milliseconds())
	}
	return &st, nil
}

// =============================================================================
// Runs, logs and commands
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.PollRun) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create run", func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO poll_runs (run_key, kind, started_at, status)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			run.RunKey, string(run.Kind), run.StartedAt, string(run.Status)).Scan(&id)
	})
	return id, err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.PollRun) error {
	return s.withTx(ctx, "update run", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE poll_runs SET finished_at = $1, status = $2, pages_ok = $3, pages_failed = $4,
				listings_seen = $5, new_listings = $6, price_changes = $7, removed = $8, sold = $9,
				transactions = $10, anomalies = $11, errors_count = $12
			WHERE id = $13`,
			run.FinishedAt, string(run.Status), run.PagesOK, run.PagesFailed,
			run.ListingsSeen, run.NewListings, run.PriceChanges, run.Removed, run.Sold,
			run.Transactions, run.Anomalies, run.ErrorsCount, run.ID)
		return err
	})
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]models.PollRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_key, kind, started_at, finished_at, status, pages_ok, pages_failed,
			listings_seen, new_listings, price_changes, removed, sold, transactions, anomalies, errors_count
		FROM poll_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapPostgres("recent runs", err)
	}
	defer rows.Close()

	var runs []models.PollRun
	for rows.Next() {
		var r models.PollRun
		var kind, status string
		if err := rows.Scan(&r.ID, &r.RunKey, &kind, &r.StartedAt, &r.FinishedAt, &status, &r.PagesOK, &r.PagesFailed,
			&r.ListingsSeen, &r.NewListings, &r.PriceChanges, &r.Removed, &r.Sold, &r.Transactions,
			&r.Anomalies, &r.ErrorsCount); err != nil {
			return nil, wrapPostgres("recent runs", err)
		}
		r.Kind = models.RunKind(kind)
		r.Status = models.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, wrapPostgres("recent runs", rows.Err())
}

func (s *PostgresStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, source string) error {
	return s.withTx(ctx, "log", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO poll_logs (run_id, timestamp, level, message, source)
			VALUES ($1, $2, $3, $4, $5)`, runID, time.Now(), string(level), message, source)
		return err
	})
}

func (s *PostgresStore) EnqueueCommand(ctx context.Context, cmd models.CommandType, params json.RawMessage) (int64, error) {
	var id int64
	err := s.withTx(ctx, "enqueue command", func(tx pgx.Tx) error {
		var p []byte
		if len(params) > 0 {
			p = params
		}
		return tx.QueryRow(ctx, `INSERT INTO commands (command, params) VALUES ($1, $2) RETURNING id`,
			string(cmd), p).Scan(&id)
	})
	return id, err
}

func (s *PostgresStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, params, created_at
		FROM commands WHERE processed_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, wrapPostgres("pending commands", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var c models.Command
		var command string
		var params []byte
		if err := rows.Scan(&c.ID, &command, &params, &c.CreatedAt); err != nil {
			return nil, wrapPostgres("pending commands", err)
		}
		c.Command = models.CommandType(command)
		if params != nil {
			c.Params = json.RawMessage(params)
		}
		cmds = append(cmds, c)
	}
	return cmds, wrapPostgres("pending commands", rows.Err())
}

func (s *PostgresStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	return s.withTx(ctx, "mark command processed", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE commands SET processed_at = NOW() WHERE id = $1`, id)
		return err
	})
}
