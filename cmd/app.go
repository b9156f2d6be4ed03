package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ah_scanner/analytics"
	"ah_scanner/config"
	"ah_scanner/httputil"
	"ah_scanner/observability"
	"ah_scanner/scraper"
	"ah_scanner/services"
	"ah_scanner/storage"
	"ah_scanner/workers"
)

// openStore opens the backend selected by database.driver.
func openStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Database.Driver {
	case "postgres":
		s, err := storage.NewPostgresStore(ctx, c.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		slog.Info("connected to postgres", "url", maskConnectionString(c.Database.URL))
		return s, nil
	default:
		s, err := storage.NewSQLiteStore(c.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("sqlite database", "path", c.Database.Path)
		return s, nil
	}
}

func newOrchestrator(c *config.Config, store storage.Store, metrics *observability.Metrics) *scraper.Orchestrator {
	budget := httputil.NewBudget(c.Upstream.RequestsPerMinute, nil)
	api := scraper.NewAuctionAPI(scraper.Options{
		BaseURL:        c.Upstream.BaseURL,
		AuthKey:        c.Upstream.AuthKey,
		ProxyURL:       c.Upstream.ProxyURL,
		Timeout:        c.Upstream.Timeout,
		MaxRetries:     c.Upstream.MaxRetries,
		InitialBackoff: c.Upstream.InitialBackoff,
		MaxBackoff:     c.Upstream.MaxBackoff,
		PageSize:       c.Upstream.PageSize,
		Search:         c.Scanner.Search,
		Sort:           c.Scanner.Sort,
	}, budget, metrics)

	o := scraper.NewOrchestrator(api, store, c.Scanner, metrics)
	o.SetLogger(workers.StoreLogger(store))
	return o
}

func newCompactionWorker(c *config.Config, store storage.Store, metrics *observability.Metrics) *workers.CompactionWorker {
	compactor := services.NewCompactor(store, c.Retention.RawRetentionDays, metrics)
	w := workers.NewCompactionWorker(compactor, store)
	w.SetLogger(workers.StoreLogger(store))
	return w
}

func newEngine(c *config.Config, store storage.Store) *analytics.Engine {
	return analytics.NewEngine(store, c.Analytics)
}

// maskConnectionString masks the password in a connection string for logging.
func maskConnectionString(connStr string) string {
	start := strings.Index(connStr, "://")
	if start < 0 {
		return connStr
	}
	start += 3

	at := strings.LastIndex(connStr, "@")
	if at < start {
		return connStr
	}
	colon := strings.Index(connStr[start:at], ":")
	if colon < 0 {
		return connStr
	}
	return connStr[:start+colon+1] + "****" + connStr[at:]
}
