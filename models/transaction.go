package models

// Transaction is a completed sale from the history feed. The natural key is
// (SoldAtMs, ItemID, SellerUUID).
type Transaction struct {
	SoldAtMs   int64   `json:"sold_at_ms" db:"sold_at_ms"`
	ItemID     string  `json:"item_id" db:"item_id"`
	ItemName   string  `json:"item_name" db:"item_name"`
	Count      int     `json:"count" db:"count"`
	Price      float64 `json:"price" db:"price"`
	SellerName string  `json:"seller_name" db:"seller_name"`
	SellerUUID string  `json:"seller_uuid" db:"seller_uuid"`
}

func (t *Transaction) Event(ts int64) Event {
	return Event{
		Type:       EventTransaction,
		TS:         ts,
		ItemID:     t.ItemID,
		ItemName:   t.ItemName,
		Price:      t.Price,
		SellerName: t.SellerName,
		SellerUUID: t.SellerUUID,
		Count:      t.Count,
	}
}
