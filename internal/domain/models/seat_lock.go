package models

import (
	"time"

	"busreserve/internal/domain"
)

// SeatLock is a time-boxed exclusive claim on one seat of one trip.
type SeatLock struct {
	Trip      domain.Trip
	Seat      string
	OwnerKey  string
	UserID    *int64
	Gender    string
	LockedAt  time.Time
	ExpiresAt time.Time
}

// ActiveAt is the liveness predicate every read path applies.
func (l SeatLock) ActiveAt(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// SeatLockResult is the per-seat outcome of an acquire call.
type SeatLockResult struct {
	Seat   string `json:"seatNo"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}
