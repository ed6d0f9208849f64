package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Trip identifies one run of one bus: the unit locks and bookings are scoped to.
type Trip struct {
	BusID         int64  `json:"busId"`
	Date          string `json:"date"`          // YYYY-MM-DD
	DepartureTime string `json:"departureTime"` // HH:MM
}

var hhmmPattern = regexp.MustCompile(`\b(\d{2}):(\d{2})\b`)

// NewTrip trims and validates the three trip fields.
func NewTrip(busID int64, date, departureTime string) (Trip, error) {
	t := Trip{BusID: busID, Date: strings.TrimSpace(date), DepartureTime: strings.TrimSpace(departureTime)}
	return t, t.Validate()
}

// ParseTrip is NewTrip for a bus id that arrives as text (query strings, path params).
func ParseTrip(busID, date, departureTime string) (Trip, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(busID), 10, 64)
	if err != nil || id <= 0 {
		return Trip{}, ValidationError{Field: "busId", Msg: "is required"}
	}
	return NewTrip(id, date, departureTime)
}

// Validate normalizes DepartureTime to HH:MM ("08:30:00" -> "08:30").
func (t *Trip) Validate() error {
	if t.BusID <= 0 {
		return ValidationError{Field: "busId", Msg: "is required"}
	}
	if t.Date == "" {
		return ValidationError{Field: "date", Msg: "is required"}
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return ValidationError{Field: "date", Msg: "must be YYYY-MM-DD", Err: err}
	}
	if t.DepartureTime == "" {
		return ValidationError{Field: "departureTime", Msg: "is required"}
	}
	m := hhmmPattern.FindString(t.DepartureTime)
	if m == "" {
		return ValidationError{Field: "departureTime", Msg: "must be HH:MM"}
	}
	if _, err := time.Parse("15:04", m); err != nil {
		return ValidationError{Field: "departureTime", Msg: "must be HH:MM", Err: err}
	}
	t.DepartureTime = m
	return nil
}

func (t Trip) String() string {
	return fmt.Sprintf("%d/%s/%s", t.BusID, t.Date, t.DepartureTime)
}

const (
	// MaxSeatLabelLen is the width of the seat_no columns.
	MaxSeatLabelLen    = 16
	MaxSeatsPerRequest = 50
)

// ValidateSeats bounds an already normalized seat list to what the store accepts.
func ValidateSeats(seats []string) error {
	if len(seats) > MaxSeatsPerRequest {
		return ValidationError{Field: "seats", Msg: fmt.Sprintf("at most %d seats per request", MaxSeatsPerRequest)}
	}
	for _, s := range seats {
		if utf8.RuneCountInString(s) > MaxSeatLabelLen {
			return ValidationError{Field: "seats", Msg: fmt.Sprintf("seat label longer than %d characters", MaxSeatLabelLen)}
		}
	}
	return nil
}

// OwnerKind tags where a lock owner identity came from.
type OwnerKind string

const (
	OwnerUser   OwnerKind = "user"
	OwnerClient OwnerKind = "client"
	OwnerOrigin OwnerKind = "ip"
)

// OwnerKey is the identity a seat lock belongs to. The kind prefix keeps a
// client token from ever colliding with a user id or an address.
type OwnerKey struct {
	Kind  OwnerKind
	Value string
	// UserID is set only for OwnerUser.
	UserID int64
}

func (o OwnerKey) String() string {
	if o.Value == "" {
		return ""
	}
	return string(o.Kind) + ":" + o.Value
}

func (o OwnerKey) IsZero() bool { return o.Value == "" }

// Authenticated reports whether the key was derived from a logged-in user.
func (o OwnerKey) Authenticated() bool { return o.Kind == OwnerUser && o.UserID > 0 }
