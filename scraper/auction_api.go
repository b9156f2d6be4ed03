package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"ah_scanner/httputil"
	"ah_scanner/observability"
)

type Options struct {
	BaseURL  string
	AuthKey  string
	ProxyURL string
	Timeout  time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// PageSize is the number of records on a full page. Zero means unknown,
	// in which case only an empty page ends pagination.
	PageSize int
	Search   string
	Sort     string
}

// AuctionAPI fetches the upstream auction feeds through a shared request budget.
type AuctionAPI struct {
	client  *resty.Client
	budget  *httputil.Budget
	metrics *observability.Metrics
	opts    Options
}

var _ Fetcher = (*AuctionAPI)(nil)

func NewAuctionAPI(opts Options, budget *httputil.Budget, metrics *observability.Metrics) *AuctionAPI {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}

	client := httputil.NewAPIClient(httputil.ClientOptions{
		BaseURL:  opts.BaseURL,
		ProxyURL: opts.ProxyURL,
		Timeout:  opts.Timeout,
	})
	client.SetAuthToken(opts.AuthKey)
	opts.AuthKey = ""

	return &AuctionAPI{
		client:  client,
		budget:  budget,
		metrics: metrics,
		opts:    opts,
	}
}

func (a *AuctionAPI) FetchListings(ctx context.Context, page int) (*ListingPage, error) {
	var body interface{}
	if a.opts.Search != "" || a.opts.Sort != "" {
		filter := map[string]string{}
		if a.opts.Search != "" {
			filter["search"] = a.opts.Search
		}
		if a.opts.Sort != "" {
			filter["sort"] = a.opts.Sort
		}
		body = filter
	}

	raw, err := a.get(ctx, ResourceListings, page, fmt.Sprintf("/v1/auction/list/%d", page), body)
	if err != nil {
		return nil, err
	}

	listings, anomalies, total, err := decodeListings(raw, page)
	if err != nil {
		return nil, &TransientFetchError{Resource: ResourceListings, Page: page, Attempts: 1, Err: err}
	}
	a.metrics.ObserveAnomalies(ResourceListings, len(anomalies))

	return &ListingPage{
		Page:      page,
		Listings:  listings,
		HasMore:   total > 0 && (a.opts.PageSize <= 0 || total >= a.opts.PageSize),
		Anomalies: anomalies,
	}, nil
}

func (a *AuctionAPI) FetchTransactions(ctx context.Context, page int) (*TransactionPage, error) {
	if page < 1 || page > MaxTransactionPages {
		return nil, fmt.Errorf("transaction page %d out of range 1..%d", page, MaxTransactionPages)
	}

	raw, err := a.get(ctx, ResourceTransactions, page, fmt.Sprintf("/v1/auction/transactions/%d", page), nil)
	if err != nil {
		return nil, err
	}

	txs, anomalies, err := decodeTransactions(raw, page)
	if err != nil {
		return nil, &TransientFetchError{Resource: ResourceTransactions, Page: page, Attempts: 1, Err: err}
	}
	a.metrics.ObserveAnomalies(ResourceTransactions, len(anomalies))

	return &TransactionPage{Page: page, Transactions: txs, Anomalies: anomalies}, nil
}

// get performs one logical request: every attempt waits on the budget, 5xx,
// 429 and network failures back off exponentially, 401 and 403 fail immediately.
func (a *AuctionAPI) get(ctx context.Context, resource string, page int, path string, reqBody interface{}) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)

	op := func() error {
		attempts++

		waited, err := a.budget.Wait(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if waited > 0 {
			a.metrics.ObserveBudgetWait(waited)
		}

		req := a.client.R().SetContext(ctx)
		if reqBody != nil {
			req.SetBody(reqBody)
		}

		start := time.Now()
		resp, err := req.Get(path)
		if err != nil {
			a.metrics.ObserveFetch(resource, "network_error", time.Since(start))
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusOK:
			a.metrics.ObserveFetch(resource, "ok", time.Since(start))
			body = resp.Body()
			return nil
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			a.metrics.ObserveFetch(resource, "auth_error", time.Since(start))
			return backoff.Permanent(&AuthError{Resource: resource, Page: page, Status: status})
		case status == http.StatusTooManyRequests || status >= 500:
			a.metrics.ObserveFetch(resource, "retryable", time.Since(start))
			return &statusError{Status: status, Body: truncate(resp.String(), 200)}
		default:
			a.metrics.ObserveFetch(resource, "client_error", time.Since(start))
			return backoff.Permanent(&statusError{Status: status, Body: truncate(resp.String(), 200)})
		}
	}

	notify := func(err error, next time.Duration) {
		a.metrics.ObserveRetry(resource)
		slog.Warn("upstream request failed, backing off",
			"resource", resource, "page", page, "attempt", attempts, "retry_in", next, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), uint64(a.opts.MaxRetries)), ctx), notify)
	if err == nil {
		return body, nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return nil, authErr
	}
	return nil, &TransientFetchError{Resource: resource, Page: page, Attempts: attempts, Err: err}
}

func (a *AuctionAPI) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.InitialBackoff
	b.MaxInterval = a.opts.MaxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
