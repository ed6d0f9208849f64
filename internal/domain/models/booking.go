package models

import (
	"time"

	"busreserve/internal/domain"

	"github.com/shopspring/decimal"
)

// PaymentStatus values stored on bookings.
const (
	PaymentPaid           = "Paid"
	PaymentManual         = "Manual"
	PaymentPaidToOperator = "PaidToOperator"
)

const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// BookingFilter narrows the staff listing. Empty fields match everything.
type BookingFilter struct {
	Date          string
	BoardingPoint string
	DroppingPoint string
	UserEmail     string
	Limit         int
	Offset        int
}

// Booking is a confirmed seat assignment on one trip.
type Booking struct {
	ID            int64            `json:"id"`
	BookingNo     string           `json:"bookingNo"`
	UserID        *int64           `json:"userId,omitempty"`
	BookedBy      *int64           `json:"bookedBy,omitempty"`
	Trip          domain.Trip      `json:"trip"`
	Seats         []string         `json:"selectedSeats"`
	Allocations   []SeatAllocation `json:"seatAllocations"`
	Passengers    []Passenger      `json:"passengers,omitempty"`
	Contact       Contact          `json:"passengerInfo"`
	BoardingPoint string           `json:"boardingPoint"`
	DroppingPoint string           `json:"droppingPoint"`
	Price         Quote            `json:"pricing"`
	PaymentStatus string           `json:"paymentStatus"`
	IsManual      bool             `json:"isManual"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Blocking reports whether the booking's seats are unavailable to others.
func (b Booking) Blocking() bool {
	return b.PaymentStatus == PaymentPaid || b.IsManual
}

// OwnedBy reports whether userID is the account that bought the booking.
func (b Booking) OwnedBy(userID int64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// SeatAllocation captures the passenger gender sitting on a seat.
type SeatAllocation struct {
	Seat   string `json:"seat"`
	Gender string `json:"gender"`
}

// Passenger carries per-seat passenger details.
type Passenger struct {
	Seat   string `json:"seat"`
	Name   string `json:"name"`
	Age    *int   `json:"age,omitempty"`
	Gender string `json:"gender"`
}

// Contact is the snapshot of the buyer's contact details.
type Contact struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	NIC      string `json:"nic"`
	Email    string `json:"email,omitempty"`
}

// Quote is the server-side price breakdown for a booking.
type Quote struct {
	PricePerSeat   decimal.Decimal `json:"pricePerSeat"`
	SeatCount      int             `json:"seatCount"`
	BaseAmount     decimal.Decimal `json:"baseAmount"`
	ConvenienceFee decimal.Decimal `json:"convenienceFee"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

// BookedSeat is one seat held by a blocking booking.
type BookedSeat struct {
	BookingID int64
	Seat      string
	Gender    string
}
