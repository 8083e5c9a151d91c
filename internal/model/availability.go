package model

import "time"

// AvailabilityEntry is the per-lot, per-day reservation flag.  A day with
// no entry is available.  Available is derived on every write as
// BookingID == nil && !ManualBlocked.
//
// Fields:
//  LotID         – lot the entry belongs to.
//  Date          – calendar day (00:00 UTC).
//  Available     – false when an approved booking holds the day or the owner blocked it.
//  BookingID     – approved booking holding the day, if any.
//  ManualBlocked – set by the lot owner through an override.
type AvailabilityEntry struct {
	LotID         string    `json:"lot_id"`               // availability_entries.lot_id
	Date          time.Time `json:"date"`                 // availability_entries.date
	Available     bool      `json:"available"`            // availability_entries.available
	BookingID     *string   `json:"booking_id,omitempty"` // availability_entries.booking_id (nullable)
	ManualBlocked bool      `json:"manual_blocked"`       // availability_entries.manual_blocked
}
