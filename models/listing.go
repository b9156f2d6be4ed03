package models

// Listing is the last observed state of one active auction.
// SeenAt and TimeLeft are in milliseconds.
type Listing struct {
	ID         string  `json:"id" db:"id"`
	ItemID     string  `json:"item_id" db:"item_id"`
	ItemName   string  `json:"item_name" db:"item_name"`
	Count      int     `json:"count" db:"count"`
	Price      float64 `json:"price" db:"price"`
	SellerName string  `json:"seller_name" db:"seller_name"`
	SellerUUID string  `json:"seller_uuid" db:"seller_uuid"`
	TimeLeft   int64   `json:"time_left" db:"time_left"`
	SeenAt     int64   `json:"seen_at" db:"seen_at"`

	// Page is the feed page the listing was read from. Not persisted.
	Page int `json:"-" db:"-"`
}

type PricePoint struct {
	ID       int64   `json:"id" db:"id"`
	ItemID   string  `json:"item_id" db:"item_id"`
	ItemName string  `json:"item_name" db:"item_name"`
	Price    float64 `json:"price" db:"price"`
	SeenAt   int64   `json:"seen_at" db:"seen_at"`
}

// CycleBatch is everything one poll cycle writes, persisted in a single transaction.
type CycleBatch struct {
	ObservedAt int64
	Listings   []Listing
	Vanished   []string
	// Carried listings were not observed this cycle but are still active.
	Carried []Listing
	Events  []Event
}
