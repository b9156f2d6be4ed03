package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ah_scanner/httputil"
)

const testKey = "test-key-123"

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func newTestAPI(t *testing.T, url string, mutate func(*Options)) *AuctionAPI {
	t.Helper()
	opts := Options{
		BaseURL:        url,
		AuthKey:        testKey,
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewAuctionAPI(opts, httputil.NewBudget(6000, nil), nil)
}

func TestDecodeListingsSkipsAnomalies(t *testing.T) {
	listings, anomalies, total, err := decodeListings(loadFixture(t, "listings_page.json"), 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 entries, got %d", total)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if len(anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(anomalies))
	}

	first := listings[0]
	if first.ItemID != "minecraft:diamond" || first.ItemName != "Diamond" || first.Count != 64 {
		t.Fatalf("unexpected first listing %+v", first)
	}
	if first.TimeLeft != 172800000 {
		t.Fatalf("expected time_left 172800000, got %d", first.TimeLeft)
	}
	if listings[1].ItemName != "minecraft:elytra" {
		t.Fatalf("expected display name to fall back to id, got %s", listings[1].ItemName)
	}
	if anomalies[0].Index != 2 || anomalies[0].Reason != "missing seller uuid" {
		t.Fatalf("unexpected anomaly %+v", anomalies[0])
	}
	if anomalies[1].Reason != "missing or negative price" {
		t.Fatalf("unexpected anomaly %+v", anomalies[1])
	}
}

func TestDecodeTransactionsRequiresSaleTime(t *testing.T) {
	txs, anomalies, err := decodeTransactions(loadFixture(t, "transactions_page.json"), 3)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Len(t, anomalies, 1)
	assert.Equal(t, int64(1714564800000), txs[0].SoldAtMs)
	assert.Equal(t, "missing sale time", anomalies[0].Reason)
	assert.Equal(t, 3, anomalies[0].Page)
}

func TestFetchListingsSendsBearerAndFilter(t *testing.T) {
	var gotAuth, gotPath, gotBody string
	fixture := loadFixture(t, "listings_page.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write(fixture)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv.URL, func(o *Options) {
		o.Search = "diamond"
		o.Sort = "lowest_price"
	})
	page, err := api.FetchListings(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+testKey, gotAuth)
	assert.Equal(t, "/v1/auction/list/2", gotPath)
	assert.JSONEq(t, `{"search":"diamond","sort":"lowest_price"}`, gotBody)
	assert.Len(t, page.Listings, 2)
	assert.Len(t, page.Anomalies, 2)
	assert.True(t, page.HasMore)
}

func TestFetchListingsHasMore(t *testing.T) {
	fixture := loadFixture(t, "listings_page.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/3") {
			w.Write([]byte(`{"status":200,"result":[]}`))
			return
		}
		w.Write(fixture)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv.URL, func(o *Options) { o.PageSize = 45 })
	page, err := api.FetchListings(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore, "4 records is a partial page when full pages hold 45")

	api = newTestAPI(t, srv.URL, nil)
	page, err = api.FetchListings(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Listings)
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	fixture := loadFixture(t, "transactions_page.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write(fixture)
		}
	}))
	defer srv.Close()

	page, err := newTestAPI(t, srv.URL, nil).FetchTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUnauthorizedIsFatalWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv.URL, nil).FetchListings(context.Background(), 1)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, 1, authErr.Page)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.NotContains(t, err.Error(), testKey)
}

func TestForbiddenIsFatalWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv.URL, nil).FetchTransactions(context.Background(), 2)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, authErr.Status)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.NotContains(t, err.Error(), testKey)
}

func TestExhaustedRetriesReturnTransientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv.URL, func(o *Options) { o.MaxRetries = 2 }).FetchListings(context.Background(), 4)
	var transient *TransientFetchError
	require.True(t, errors.As(err, &transient), "got %v", err)
	assert.Equal(t, 4, transient.Page)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv.URL, nil).FetchTransactions(context.Background(), 2)
	var transient *TransientFetchError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchTransactionsRejectsOutOfRangePage(t *testing.T) {
	api := newTestAPI(t, "http://127.0.0.1:1", nil)
	_, err := api.FetchTransactions(context.Background(), 11)
	assert.Error(t, err)
}
