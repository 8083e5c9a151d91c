package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the reservation axis of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusApproved  BookingStatus = "APPROVED"
	StatusRejected  BookingStatus = "REJECTED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// PaymentStatus is the payment sub-state of a booking.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentVerified PaymentStatus = "VERIFIED"
	PaymentRejected PaymentStatus = "REJECTED"
	PaymentExpired  PaymentStatus = "EXPIRED"
)

// Open reports whether the booking can still change status or payment state.
func (s BookingStatus) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// Booking is a tenant's request to occupy a lot over a range of days.
// StartDate is the first day at 00:00:00 UTC and EndDate is the last
// day at 23:59:59 UTC; both ends are inclusive.
//
// Fields:
//  ID              – primary key identifier (UUID).
//  LotID           – lot being booked.
//  TenantID        – user who requested the booking.
//  StartDate       – first booked day.
//  EndDate         – end-of-day boundary of the last booked day.
//  Status          – reservation state (PENDING, APPROVED, REJECTED, CANCELLED).
//  PaymentStatus   – payment state (PENDING, PAID, VERIFIED, REJECTED, EXPIRED).
//  PaymentAmount   – price per day times the inclusive day count.
//  PaymentDueDate  – deadline for submitting payment.
//  PaymentMethod   – method declared by the tenant on submission.
//  PaymentProofRef – storage reference of the uploaded proof.
//  PaidAt          – when the proof was submitted.
//  RejectionReason – reason given on rejection or cancellation.
//  IsArchived      – hidden from operational listings.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Booking struct {
	ID              string          `json:"id"`                          // bookings.id
	LotID           string          `json:"lot_id"`                      // bookings.lot_id
	TenantID        string          `json:"tenant_id"`                   // bookings.tenant_id
	StartDate       time.Time       `json:"start_date"`                  // bookings.start_date
	EndDate         time.Time       `json:"end_date"`                    // bookings.end_date
	Status          BookingStatus   `json:"status"`                      // bookings.status
	PaymentStatus   PaymentStatus   `json:"payment_status"`              // bookings.payment_status
	PaymentAmount   decimal.Decimal `json:"payment_amount"`              // bookings.payment_amount
	PaymentDueDate  time.Time       `json:"payment_due_date"`            // bookings.payment_due_date
	PaymentMethod   *string         `json:"payment_method,omitempty"`    // bookings.payment_method (nullable)
	PaymentProofRef *string         `json:"payment_proof_ref,omitempty"` // bookings.payment_proof_ref (nullable)
	PaidAt          *time.Time      `json:"paid_at,omitempty"`           // bookings.paid_at (nullable)
	RejectionReason *string         `json:"rejection_reason,omitempty"`  // bookings.rejection_reason (nullable)
	IsArchived      bool            `json:"is_archived"`                 // bookings.is_archived
	CreatedAt       time.Time       `json:"created_at"`                  // bookings.created_at
	UpdatedAt       time.Time       `json:"updated_at"`                  // bookings.updated_at
}

// Range returns the booked days as a DateRange.
func (b *Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// BookingFilter narrows booking listings.  Empty fields do not filter.
type BookingFilter struct {
	TenantID        string
	OwnerID         string // landlord owning the lot's market
	LotID           string
	Statuses        []BookingStatus
	PaymentStatuses []PaymentStatus
	IncludeArchived bool
	OrderByDueDate  bool // otherwise newest first
}
