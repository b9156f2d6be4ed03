package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ah_scanner/models"
)

// 2024-03-10T00:00:00Z
const day0 = int64(1710028800000)

const hourMs = int64(time.Hour / time.Millisecond)

func ptr[T any](v T) *T {
	return &v
}

func testListing(id, item string, price float64, seenAt int64) models.Listing {
	return models.Listing{
		ID:         id,
		ItemID:     item,
		ItemName:   "Name " + item,
		Count:      1,
		Price:      price,
		SellerName: "seller",
		SellerUUID: "uuid-" + id,
		TimeLeft:   3_600_000,
		SeenAt:     seenAt,
	}
}

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("PersistCycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testListing("a", "diamond", 100, day0)
		b := testListing("b", "diamond", 120, day0)
		first := &models.CycleBatch{
			ObservedAt: day0,
			Listings:   []models.Listing{a, b},
			Events: []models.Event{
				models.EventFromListing(models.EventNewListing, day0, &a),
				models.EventFromListing(models.EventNewListing, day0, &b),
			},
		}
		require.NoError(t, s.PersistCycle(ctx, first))
		assert.NotZero(t, first.Events[0].ID)

		a2 := a
		a2.Price = 90
		a2.SeenAt = day0 + 1000
		change := models.EventFromListing(models.EventPriceChange, day0+1000, &a2)
		change.PreviousPrice = ptr(100.0)
		removed := models.EventFromListing(models.EventRemoved, day0+1000, &b)
		second := &models.CycleBatch{
			ObservedAt: day0 + 1000,
			Listings:   []models.Listing{a2},
			Vanished:   []string{"b"},
			Events:     []models.Event{change, removed},
		}
		require.NoError(t, s.PersistCycle(ctx, second))

		listings, err := s.ListingsSeenSince(ctx, 0)
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, "a", listings[0].ID)
		assert.Equal(t, 90.0, listings[0].Price)

		events, err := s.EventsInRange(ctx, day0, day0+hourMs)
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, models.EventPriceChange, events[2].Type)
		require.NotNil(t, events[2].PreviousPrice)
		assert.Equal(t, 100.0, *events[2].PreviousPrice)
		assert.Nil(t, events[0].PreviousPrice)

		newest, err := s.EventsSince(ctx, 0, 1)
		require.NoError(t, err)
		require.Len(t, newest, 1)
		assert.Equal(t, models.EventRemoved, newest[0].Type)

		forItem, err := s.EventsForItem(ctx, "diamond", day0+500)
		require.NoError(t, err)
		assert.Len(t, forItem, 2)
	})

	t.Run("PersistCycleKeepsCarriedListings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testListing("a", "diamond", 100, day0)
		deep := testListing("deep", "emerald", 50, day0)
		stale := testListing("stale", "emerald", 60, day0)
		require.NoError(t, s.PersistCycle(ctx, &models.CycleBatch{
			ObservedAt: day0,
			Listings:   []models.Listing{a, deep, stale},
		}))

		a.SeenAt = day0 + 1000
		require.NoError(t, s.PersistCycle(ctx, &models.CycleBatch{
			ObservedAt: day0 + 1000,
			Listings:   []models.Listing{a},
			Carried:    []models.Listing{deep},
		}))

		listings, err := s.ListingsSeenSince(ctx, 0)
		require.NoError(t, err)
		got := map[string]int64{}
		for _, l := range listings {
			got[l.ID] = l.SeenAt
		}
		assert.Equal(t, map[string]int64{"a": day0 + 1000, "deep": day0}, got)

		// only observed listings record a price
		_, prices, err := s.PurgeDay(ctx, models.DayOf(day0))
		require.NoError(t, err)
		assert.EqualValues(t, 4, prices)
	})

	t.Run("ImportTransactionsIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		txs := []models.Transaction{
			{SoldAtMs: day0, ItemID: "elytra", ItemName: "Elytra", Count: 1, Price: 500, SellerUUID: "s1"},
			{SoldAtMs: day0 + 1, ItemID: "elytra", ItemName: "Elytra", Count: 1, Price: 550, SellerUUID: "s2"},
		}
		inserted, err := s.ImportTransactions(ctx, txs, day0+10)
		require.NoError(t, err)
		assert.Len(t, inserted, 2)

		inserted, err = s.ImportTransactions(ctx, txs, day0+20)
		require.NoError(t, err)
		assert.Empty(t, inserted)

		fresh, err := s.UpsertTransaction(ctx, &txs[0])
		require.NoError(t, err)
		assert.False(t, fresh)

		events, err := s.EventsSince(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, events, 2)
		for _, e := range events {
			assert.Equal(t, models.EventTransaction, e.Type)
			assert.Equal(t, day0+10, e.TS)
		}

		stats, err := s.GlobalStats(ctx, day0+hourMs)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.TotalTransactions)
	})

	t.Run("RollupsAndPurge", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		day := models.DayOf(day0)

		for i, price := range []float64{10, 20, 30} {
			require.NoError(t, s.AppendEvent(ctx, &models.Event{
				Type: models.EventNewListing, TS: day0 + int64(i), ItemID: "gold", ItemName: "Gold", Price: price, Count: 1,
			}))
			require.NoError(t, s.InsertPricePoint(ctx, &models.PricePoint{
				ItemID: "gold", ItemName: "Gold", Price: price, SeenAt: day0 + int64(i),
			}))
		}
		require.NoError(t, s.AppendEvent(ctx, &models.Event{
			Type: models.EventNewListing, TS: day0 + 24*hourMs, ItemID: "gold", ItemName: "Gold", Price: 40, Count: 1,
		}))

		days, err := s.RawDaysBefore(ctx, day.EndMillis())
		require.NoError(t, err)
		assert.Equal(t, []models.Day{day}, days)

		days, err = s.RawDaysBefore(ctx, (day + 2).EndMillis())
		require.NoError(t, err)
		assert.Equal(t, []models.Day{day, day + 1}, days)

		rollup := models.DailyRollup{Date: day.String(), ItemID: "gold", ItemName: "Gold", Median: 20, P25: 15, P75: 25, Count: 3}
		require.NoError(t, s.WriteRollups(ctx, []models.DailyRollup{rollup}))
		// rewriting the same day replaces the row
		require.NoError(t, s.WriteRollups(ctx, []models.DailyRollup{rollup}))

		rows, total, err := s.RollupTotals(ctx, day.String())
		require.NoError(t, err)
		assert.Equal(t, 1, rows)
		assert.Equal(t, 3, total)

		events, prices, err := s.PurgeDay(ctx, day)
		require.NoError(t, err)
		assert.EqualValues(t, 3, events)
		assert.EqualValues(t, 3, prices)

		remaining, err := s.EventsSince(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, 40.0, remaining[0].Price)

		got, err := s.GetRollups(ctx, day.String(), day.String(), "gold")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rollup, got[0])

		none, err := s.GetRollups(ctx, "", "", "iron")
		require.NoError(t, err)
		assert.Empty(t, none)

		stats, err := s.GlobalStats(ctx, day0+24*hourMs)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.TotalEvents)
		assert.EqualValues(t, 1, stats.TotalRollups)
		assert.EqualValues(t, 1, stats.UniqueItems)
		assert.EqualValues(t, 1, stats.EventsLastHour)
		assert.InDelta(t, 24.0, stats.DataSpanHours, 1e-9)
	})

	t.Run("RawDaysIncludePriceOnlyDays", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		day := models.DayOf(day0)

		// prices without events, as left behind by listings that never changed
		for i := int64(0); i < 2; i++ {
			require.NoError(t, s.InsertPricePoint(ctx, &models.PricePoint{
				ItemID: "iron", ItemName: "Iron", Price: 5, SeenAt: day0 + i*hourMs,
			}))
		}
		require.NoError(t, s.AppendEvent(ctx, &models.Event{
			Type: models.EventNewListing, TS: day0 + 48*hourMs, ItemID: "gold", ItemName: "Gold", Price: 40, Count: 1,
		}))
		require.NoError(t, s.InsertPricePoint(ctx, &models.PricePoint{
			ItemID: "gold", ItemName: "Gold", Price: 40, SeenAt: day0 + 48*hourMs,
		}))

		days, err := s.RawDaysBefore(ctx, (day + 3).EndMillis())
		require.NoError(t, err)
		assert.Equal(t, []models.Day{day, day + 2}, days)

		events, prices, err := s.PurgeDay(ctx, day)
		require.NoError(t, err)
		assert.EqualValues(t, 0, events)
		assert.EqualValues(t, 2, prices)

		days, err = s.RawDaysBefore(ctx, (day + 3).EndMillis())
		require.NoError(t, err)
		assert.Equal(t, []models.Day{day + 2}, days)
	})

	t.Run("DistinctItems", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, e := range []models.Event{
			{Type: models.EventNewListing, TS: day0, ItemID: "iron", ItemName: "Iron", Price: 1, Count: 1},
			{Type: models.EventNewListing, TS: day0 + 1, ItemID: "iron", ItemName: "Iron", Price: 2, Count: 1},
			{Type: models.EventNewListing, TS: day0 + 2, ItemID: "coal", ItemName: "Coal", Price: 1, Count: 1},
		} {
			e := e
			require.NoError(t, s.AppendEvent(ctx, &e))
		}

		items, err := s.DistinctItems(ctx, 0)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, models.ItemRef{ItemID: "coal", ItemName: "Coal", Observations: 1}, items[0])
		assert.Equal(t, 2, items[1].Observations)
	})

	t.Run("RunsLogsAndCommands", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := &models.PollRun{
			RunKey:    "run-1",
			Kind:      models.RunKindListings,
			StartedAt: time.Now().UTC().Truncate(time.Second),
			Status:    models.RunStatusRunning,
		}
		id, err := s.CreateRun(ctx, run)
		require.NoError(t, err)
		run.ID = id

		finished := run.StartedAt.Add(time.Second)
		run.FinishedAt = &finished
		run.Status = models.RunStatusPartial
		run.PagesOK = 2
		run.PagesFailed = 1
		run.NewListings = 5
		require.NoError(t, s.UpdateRun(ctx, run))
		require.NoError(t, s.Log(ctx, &run.ID, models.LogLevelWarn, "page 3 failed", "listings"))

		runs, err := s.RecentRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunStatusPartial, runs[0].Status)
		assert.Equal(t, 5, runs[0].NewListings)
		require.NotNil(t, runs[0].FinishedAt)

		cmdID, err := s.EnqueueCommand(ctx, models.CmdCompactNow, json.RawMessage(`{"force":true}`))
		require.NoError(t, err)
		_, err = s.EnqueueCommand(ctx, models.CmdPause, nil)
		require.NoError(t, err)

		pending, err := s.GetPendingCommands(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, models.CmdCompactNow, pending[0].Command)
		assert.JSONEq(t, `{"force":true}`, string(pending[0].Params))
		assert.Empty(t, pending[1].Params)

		require.NoError(t, s.MarkCommandProcessed(ctx, cmdID))
		pending, err = s.GetPendingCommands(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, models.CmdPause, pending[0].Command)
	})
}
