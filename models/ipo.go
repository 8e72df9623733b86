package models

import "time"

// IPORecord is a single row extracted from the recent-IPO listing table.
// Records are immutable once extracted; CompanyLink is the unique identifier
// used for cross-run deduplication.
type IPORecord struct {
	Company       string    `json:"company"`
	CompanyLink   string    `json:"company_link"`
	ListingDate   time.Time `json:"listing_date"`
	IPOMCap       float64   `json:"ipo_mcap"`
	IPOPrice      float64   `json:"ipo_price"`
	CurrentPrice  float64   `json:"current_price"`
	PercentChange float64   `json:"percent_change"`
}
