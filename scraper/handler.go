package scraper

import (
	"context"

	"ah_scanner/models"
)

const (
	ResourceListings     = "listings"
	ResourceTransactions = "transactions"

	// MaxTransactionPages is the depth of the upstream transaction history.
	MaxTransactionPages = 10
)

// Fetcher pulls pages from the two upstream feeds.
type Fetcher interface {
	FetchListings(ctx context.Context, page int) (*ListingPage, error)
	FetchTransactions(ctx context.Context, page int) (*TransactionPage, error)
}

type ListingPage struct {
	Page      int
	Listings  []models.Listing
	HasMore   bool
	Anomalies []DataAnomalyError
}

type TransactionPage struct {
	Page         int
	Transactions []models.Transaction
	Anomalies    []DataAnomalyError
}
