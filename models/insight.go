package models

type UndervaluedListing struct {
	ListingID       string  `json:"listing_id"`
	ItemID          string  `json:"item_id"`
	Item            string  `json:"item"`
	Price           float64 `json:"price"`
	Median          float64 `json:"median"`
	DiscountPct     float64 `json:"discount_pct"`
	ProfitPotential float64 `json:"profit_potential"`
	Seller          string  `json:"seller"`
	Count           int     `json:"count"`
	TimeLeft        int64   `json:"time_left"`
	SampleSize      int     `json:"sample_size"`
	SeenAt          int64   `json:"seen_at"`
}

type Recommendation struct {
	ListingID       string  `json:"listing_id"`
	ItemID          string  `json:"item_id"`
	Item            string  `json:"item"`
	PriorityScore   float64 `json:"priority_score"`
	CurrentPrice    float64 `json:"current_price"`
	MedianPrice     float64 `json:"median_price"`
	ProfitPotential float64 `json:"profit_potential"`
	Confidence      float64 `json:"confidence"`
	TimeLeft        int64   `json:"time_left"`
	Seller          string  `json:"seller"`
	SeenAt          int64   `json:"seen_at"`
}

type MarketStat struct {
	ItemID     string  `json:"item_id"`
	Item       string  `json:"item"`
	TradeCount int     `json:"trade_count"`
	Median     float64 `json:"median"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Volatility float64 `json:"volatility"`
	SampleSize int     `json:"sample_size"`
}

type GlobalStats struct {
	TotalEvents       int64   `json:"total_events"`
	TotalListings     int64   `json:"total_listings"`
	TotalTransactions int64   `json:"total_transactions"`
	UniqueItems       int64   `json:"unique_items"`
	EventsLastHour    int64   `json:"events_last_hour"`
	DataSpanHours     float64 `json:"data_span_hours"`
	TotalRollups      int64   `json:"total_rollups"`
}

type ItemRef struct {
	ItemID       string `json:"item_id"`
	ItemName     string `json:"item_name"`
	Observations int    `json:"observations"`
}
