// Package analytics derives price statistics, underpriced listings and buy
// recommendations from the event store. Nothing is cached; every call reads
// the store.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sahilm/fuzzy"

	"ah_scanner/config"
	"ah_scanner/models"
	"ah_scanner/storage"
)

type Engine struct {
	store storage.EventStore
	cfg   config.AnalyticsConfig
	now   func() time.Time
}

func NewEngine(store storage.EventStore, cfg config.AnalyticsConfig) *Engine {
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type itemKey struct {
	itemID   string
	itemName string
}

// ItemSample is the outlier-filtered price sample for one item.
type ItemSample struct {
	ItemID   string
	ItemName string
	Prices   []float64
	Median   float64
	Mean     float64
	Stddev   float64
	Min      float64
	Max      float64
}

func (s *ItemSample) N() int { return len(s.Prices) }

func (s *ItemSample) CV() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return s.Stddev / s.Mean
}

func newSample(k itemKey, raw []float64) *ItemSample {
	prices := FilterOutliers(raw)
	s := &ItemSample{
		ItemID:   k.itemID,
		ItemName: k.itemName,
		Prices:   prices,
		Median:   Median(prices),
		Mean:     Mean(prices),
		Stddev:   PopulationStddev(prices),
	}
	if len(prices) > 0 {
		s.Min, s.Max = prices[0], prices[0]
		for _, p := range prices[1:] {
			s.Min = math.Min(s.Min, p)
			s.Max = math.Max(s.Max, p)
		}
	}
	return s
}

// samples groups every priced event since the given time by item.
func (e *Engine) samples(ctx context.Context, since int64) (map[itemKey]*ItemSample, map[itemKey]int, error) {
	events, err := e.store.EventsSince(ctx, since, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("load sample: %w", err)
	}

	raw := make(map[itemKey][]float64)
	trades := make(map[itemKey]int)
	for _, ev := range events {
		k := itemKey{ev.ItemID, ev.ItemName}
		if ev.Type == models.EventTransaction {
			trades[k]++
		}
		if ev.Price > 0 {
			raw[k] = append(raw[k], ev.Price)
		}
	}

	out := make(map[itemKey]*ItemSample, len(raw))
	for k, prices := range raw {
		out[k] = newSample(k, prices)
	}
	return out, trades, nil
}

func (e *Engine) nowMillis() int64 { return e.now().UnixMilli() }

// LiveListings returns the newest events inside window.
func (e *Engine) LiveListings(ctx context.Context, window time.Duration, limit int) ([]models.Event, error) {
	events, err := e.store.EventsSince(ctx, e.nowMillis()-window.Milliseconds(), limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// Undervalued lists current listings priced at or below threshold*median,
// best discount first.
func (e *Engine) Undervalued(ctx context.Context) ([]models.UndervaluedListing, error) {
	now := e.nowMillis()
	samples, _, err := e.samples(ctx, now-e.cfg.SampleWindow.Milliseconds())
	if err != nil {
		return nil, err
	}
	listings, err := e.store.ListingsSeenSince(ctx, now-e.cfg.ListingMaxAge.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	out := []models.UndervaluedListing{}
	for _, l := range listings {
		s, ok := samples[itemKey{l.ItemID, l.ItemName}]
		if !ok || s.N() < e.cfg.MinSamples {
			continue
		}
		if !IsUnderpriced(l.Price, s.Median, e.cfg.UnderpriceThreshold) {
			continue
		}
		out = append(out, models.UndervaluedListing{
			ListingID:       l.ID,
			ItemID:          l.ItemID,
			Item:            displayName(l.ItemID, l.ItemName),
			Price:           l.Price,
			Median:          s.Median,
			DiscountPct:     round2(Discount(l.Price, s.Median) * 100),
			ProfitPotential: round2(s.Median - l.Price),
			Seller:          l.SellerName,
			Count:           l.Count,
			TimeLeft:        l.TimeLeft,
			SampleSize:      s.N(),
			SeenAt:          l.SeenAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DiscountPct != out[j].DiscountPct {
			return out[i].DiscountPct > out[j].DiscountPct
		}
		return out[i].ListingID < out[j].ListingID
	})
	if limit := e.cfg.UndervaluedLimit; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PriorityScore combines discount, price stability and sample confidence into 0..100.
func PriorityScore(discount, cv, confidence float64) float64 {
	stability := 1 / (1 + cv)
	return 100 * (0.4*discount + 0.3*stability + 0.3*confidence)
}

func (e *Engine) confidence(n int) float64 {
	sat := e.cfg.ConfidenceSaturation
	if sat <= 0 {
		return 1
	}
	return math.Min(1, float64(n)/float64(sat))
}

// Recommendations ranks the underpriced listings by PriorityScore.
func (e *Engine) Recommendations(ctx context.Context) ([]models.Recommendation, error) {
	now := e.nowMillis()
	samples, _, err := e.samples(ctx, now-e.cfg.SampleWindow.Milliseconds())
	if err != nil {
		return nil, err
	}
	listings, err := e.store.ListingsSeenSince(ctx, now-e.cfg.ListingMaxAge.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	recs := []models.Recommendation{}
	for _, l := range listings {
		s, ok := samples[itemKey{l.ItemID, l.ItemName}]
		if !ok || s.N() < e.cfg.MinSamples {
			continue
		}
		if !IsUnderpriced(l.Price, s.Median, e.cfg.UnderpriceThreshold) {
			continue
		}
		conf := e.confidence(s.N())
		recs = append(recs, models.Recommendation{
			ListingID:       l.ID,
			ItemID:          l.ItemID,
			Item:            displayName(l.ItemID, l.ItemName),
			PriorityScore:   round2(PriorityScore(Discount(l.Price, s.Median), s.CV(), conf)),
			CurrentPrice:    l.Price,
			MedianPrice:     s.Median,
			ProfitPotential: round2(s.Median - l.Price),
			Confidence:      round2(conf),
			TimeLeft:        l.TimeLeft,
			Seller:          l.SellerName,
			SeenAt:          l.SeenAt,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if da, db := a.MedianPrice-a.CurrentPrice, b.MedianPrice-b.CurrentPrice; da != db {
			return da > db
		}
		if a.SeenAt != b.SeenAt {
			return a.SeenAt > b.SeenAt
		}
		return a.ListingID < b.ListingID
	})
	if limit := e.cfg.UndervaluedLimit; limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// MarketOverview summarizes each item seen in the overview window.
func (e *Engine) MarketOverview(ctx context.Context) ([]models.MarketStat, error) {
	samples, trades, err := e.samples(ctx, e.nowMillis()-e.cfg.OverviewWindow.Milliseconds())
	if err != nil {
		return nil, err
	}

	stats := []models.MarketStat{}
	for k, s := range samples {
		if s.N() < e.cfg.MinSamples {
			continue
		}
		stats = append(stats, models.MarketStat{
			ItemID:     k.itemID,
			Item:       displayName(k.itemID, k.itemName),
			TradeCount: trades[k],
			Median:     s.Median,
			Min:        s.Min,
			Max:        s.Max,
			Volatility: round2(s.CV() * 100),
			SampleSize: s.N(),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.TradeCount != b.TradeCount {
			return a.TradeCount > b.TradeCount
		}
		if a.SampleSize != b.SampleSize {
			return a.SampleSize > b.SampleSize
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.ItemID < b.ItemID
	})
	return stats, nil
}

// Trend returns the daily rollups for one item, oldest first.
func (e *Engine) Trend(ctx context.Context, itemID string) ([]models.DailyRollup, error) {
	rollups, err := e.store.GetRollups(ctx, "", "", itemID)
	if err != nil {
		return nil, err
	}
	if rollups == nil {
		rollups = []models.DailyRollup{}
	}
	return rollups, nil
}

func (e *Engine) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	return e.store.GlobalStats(ctx, e.nowMillis())
}

type itemSource []models.ItemRef

func (s itemSource) String(i int) string { return displayName(s[i].ItemID, s[i].ItemName) }
func (s itemSource) Len() int            { return len(s) }

// SearchItems fuzzy-matches q against the items seen in the sample window.
func (e *Engine) SearchItems(ctx context.Context, q string, limit int) ([]models.ItemRef, error) {
	items, err := e.store.DistinctItems(ctx, e.nowMillis()-e.cfg.SampleWindow.Milliseconds())
	if err != nil {
		return nil, err
	}

	out := []models.ItemRef{}
	if q == "" {
		return out, nil
	}
	for _, m := range fuzzy.FindFrom(q, itemSource(items)) {
		out = append(out, items[m.Index])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func displayName(itemID, itemName string) string {
	if itemName != "" {
		return itemName
	}
	return itemID
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
