package models

type EventType string

const (
	EventNewListing  EventType = "new_listing"
	EventPriceChange EventType = "price_change"
	EventRemoved     EventType = "removed"
	EventSold        EventType = "sold"
	EventTransaction EventType = "transaction"
)

var EventTypes = []EventType{EventNewListing, EventPriceChange, EventRemoved, EventSold, EventTransaction}

// Event is a row of the append-only event log. TS is unix milliseconds.
type Event struct {
	ID            int64     `json:"event_id" db:"id"`
	Type          EventType `json:"type" db:"type"`
	TS            int64     `json:"ts" db:"ts"`
	ListingID     string    `json:"listing_id,omitempty" db:"listing_id"`
	ItemID        string    `json:"item_id" db:"item_id"`
	ItemName      string    `json:"item_name" db:"item_name"`
	Price         float64   `json:"price" db:"price"`
	PreviousPrice *float64  `json:"previous_price,omitempty" db:"previous_price"`
	SellerName    string    `json:"seller_name" db:"seller_name"`
	SellerUUID    string    `json:"seller_uuid" db:"seller_uuid"`
	Count         int       `json:"count" db:"count"`
	TimeLeft      int64     `json:"time_left" db:"time_left"`
}

// EventFromListing copies the listing fields onto a new event of type t.
func EventFromListing(t EventType, ts int64, l *Listing) Event {
	return Event{
		Type:       t,
		TS:         ts,
		ListingID:  l.ID,
		ItemID:     l.ItemID,
		ItemName:   l.ItemName,
		Price:      l.Price,
		SellerName: l.SellerName,
		SellerUUID: l.SellerUUID,
		Count:      l.Count,
		TimeLeft:   l.TimeLeft,
	}
}
