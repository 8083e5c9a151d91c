package model

import "github.com/shopspring/decimal"

// Lot is a bookable unit inside a market.  Markets and lots are managed
// by the market service; the reservation engine only reads them.
//
// Fields:
//  ID          – primary key identifier.
//  MarketID    – market the lot belongs to.
//  OwnerID     – user ID of the market owner (landlord), joined from markets.
//  Name        – display name of the lot.
//  PricePerDay – price charged per calendar day.
//  Available   – global kill-switch; when false no new bookings are accepted.
type Lot struct {
	ID          string          `json:"id"`            // lots.id
	MarketID    string          `json:"market_id"`     // lots.market_id
	OwnerID     string          `json:"owner_id"`      // markets.owner_id
	Name        string          `json:"name"`          // lots.name
	PricePerDay decimal.Decimal `json:"price_per_day"` // lots.price_per_day
	Available   bool            `json:"available"`     // lots.available
}
