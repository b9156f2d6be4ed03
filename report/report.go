// Package report builds point-in-time market snapshots from the analytics engine.
package report

import (
	"context"
	"fmt"
	"time"

	"ah_scanner/analytics"
	"ah_scanner/models"
)

const topN = 20

type Snapshot struct {
	GeneratedAt     time.Time
	Stats           *models.GlobalStats
	Undervalued     []models.UndervaluedListing
	Recommendations []models.Recommendation
	Market          []models.MarketStat
}

// Generate reads everything a snapshot needs. The store is only read.
func Generate(ctx context.Context, engine *analytics.Engine, now time.Time) (*Snapshot, error) {
	stats, err := engine.GlobalStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}
	under, err := engine.Undervalued(ctx)
	if err != nil {
		return nil, fmt.Errorf("undervalued: %w", err)
	}
	recs, err := engine.Recommendations(ctx)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	market, err := engine.MarketOverview(ctx)
	if err != nil {
		return nil, fmt.Errorf("market overview: %w", err)
	}

	return &Snapshot{
		GeneratedAt:     now.UTC(),
		Stats:           stats,
		Undervalued:     head(under, topN),
		Recommendations: head(recs, topN),
		Market:          head(market, topN),
	}, nil
}

// FileName is backup-YYYYMMDD-HHMMSS plus ext.
func FileName(at time.Time, ext string) string {
	return "backup-" + at.UTC().Format("20060102-150405") + ext
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
