package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ah_scanner/models"
)

type apiResponse struct {
	Status int               `json:"status"`
	Result []json.RawMessage `json:"result"`
}

type apiItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Count       *int   `json:"count"`
}

type apiSeller struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type apiListing struct {
	ID       json.RawMessage `json:"id"`
	Item     *apiItem        `json:"item"`
	Price    *float64        `json:"price"`
	Seller   *apiSeller      `json:"seller"`
	TimeLeft *int64          `json:"time_left"`
}

type apiTransaction struct {
	Item   *apiItem   `json:"item"`
	Price  *float64   `json:"price"`
	Seller *apiSeller `json:"seller"`
	SoldAt *int64     `json:"unixMillisDateSold"`
}

func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Result, nil
}

// decodeListings parses a listing page. Records that cannot be used are
// reported as anomalies and left out. seenAt is stamped by the caller.
func decodeListings(body []byte, page int) ([]models.Listing, []DataAnomalyError, int, error) {
	entries, err := decodeEnvelope(body)
	if err != nil {
		return nil, nil, 0, err
	}

	var (
		listings  []models.Listing
		anomalies []DataAnomalyError
	)
	for i, raw := range entries {
		anomaly := func(reason string) {
			anomalies = append(anomalies, DataAnomalyError{Resource: ResourceListings, Page: page, Index: i, Reason: reason})
		}

		var entry apiListing
		if err := json.Unmarshal(raw, &entry); err != nil {
			anomaly("malformed record: " + err.Error())
			continue
		}
		itemID, itemName, count, reason := itemFields(entry.Item)
		if reason != "" {
			anomaly(reason)
			continue
		}
		if entry.Price == nil || *entry.Price < 0 {
			anomaly("missing or negative price")
			continue
		}
		if entry.Seller == nil || entry.Seller.UUID == "" {
			anomaly("missing seller uuid")
			continue
		}

		l := models.Listing{
			ID:         rawID(entry.ID),
			ItemID:     itemID,
			ItemName:   itemName,
			Count:      count,
			Price:      *entry.Price,
			SellerName: entry.Seller.Name,
			SellerUUID: entry.Seller.UUID,
		}
		if entry.TimeLeft != nil && *entry.TimeLeft > 0 {
			l.TimeLeft = *entry.TimeLeft
		}
		listings = append(listings, l)
	}
	return listings, anomalies, len(entries), nil
}

func decodeTransactions(body []byte, page int) ([]models.Transaction, []DataAnomalyError, error) {
	entries, err := decodeEnvelope(body)
	if err != nil {
		return nil, nil, err
	}

	var (
		txs       []models.Transaction
		anomalies []DataAnomalyError
	)
	for i, raw := range entries {
		anomaly := func(reason string) {
			anomalies = append(anomalies, DataAnomalyError{Resource: ResourceTransactions, Page: page, Index: i, Reason: reason})
		}

		var entry apiTransaction
		if err := json.Unmarshal(raw, &entry); err != nil {
			anomaly("malformed record: " + err.Error())
			continue
		}
		itemID, itemName, count, reason := itemFields(entry.Item)
		if reason != "" {
			anomaly(reason)
			continue
		}
		if entry.Price == nil || *entry.Price < 0 {
			anomaly("missing or negative price")
			continue
		}
		if entry.Seller == nil || entry.Seller.UUID == "" {
			anomaly("missing seller uuid")
			continue
		}
		if entry.SoldAt == nil || *entry.SoldAt <= 0 {
			anomaly("missing sale time")
			continue
		}

		txs = append(txs, models.Transaction{
			SoldAtMs:   *entry.SoldAt,
			ItemID:     itemID,
			ItemName:   itemName,
			Count:      count,
			Price:      *entry.Price,
			SellerName: entry.Seller.Name,
			SellerUUID: entry.Seller.UUID,
		})
	}
	return txs, anomalies, nil
}

func itemFields(item *apiItem) (id, name string, count int, reason string) {
	if item == nil || strings.TrimSpace(item.ID) == "" {
		return "", "", 0, "missing item id"
	}
	name = item.DisplayName
	if name == "" {
		name = item.ID
	}
	count = 1
	if item.Count != nil {
		if *item.Count <= 0 {
			return "", "", 0, "non-positive item count"
		}
		count = *item.Count
	}
	return item.ID, name, count, ""
}

// rawID accepts string or numeric ids.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
