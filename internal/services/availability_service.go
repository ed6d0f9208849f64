package services

import (
	"context"
	"sort"
	"time"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/utils"
)

// AvailabilityService computes the seat map. Nothing is cached: lock expiry
// is time dependent, so every call reads the store again.
type AvailabilityService struct {
	Locks     SeatLockStore
	Bookings  BookingStore
	Buses     BusReader
	Now       func() time.Time
	RequestID string
}

// Availability is the seat map for one trip.
type Availability struct {
	Trip             domain.Trip       `json:"trip"`
	TotalSeats       int               `json:"totalSeats"`
	AvailableSeats   int               `json:"availableSeats"`
	BookedSeats      []string          `json:"bookedSeats"`
	LockedSeats      []string          `json:"lockedSeats"`
	UnavailableSeats []string          `json:"unavailableSeats"`
	SeatGenderMap    map[string]string `json:"seatGenderMap"`
}

// BookedSeats is the public view: confirmed seats only.
type BookedSeats struct {
	BookedSeats   []string          `json:"bookedSeats"`
	SeatGenderMap map[string]string `json:"seatGenderMap"`
}

func (s AvailabilityService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

func (s AvailabilityService) GetAvailability(ctx context.Context, trip domain.Trip) (Availability, error) {
	if err := trip.Validate(); err != nil {
		return Availability{}, err
	}
	bus, err := s.Buses.FindBus(ctx, trip.BusID)
	if err != nil {
		return Availability{}, intdb.ClassifyError("find bus", err)
	}

	booked, err := s.bookedSeats(ctx, trip)
	if err != nil {
		return Availability{}, err
	}

	locks, err := s.Locks.ActiveLocks(ctx, trip, s.now())
	if err != nil {
		return Availability{}, intdb.ClassifyError("availability", err)
	}
	locked := make([]string, 0, len(locks))
	for _, l := range locks {
		locked = append(locked, l.Seat)
	}

	unavailable := union(booked.BookedSeats, locked)
	available := bus.SeatCount - len(unavailable)
	if available < 0 {
		available = 0
	}

	utils.LogEvent(s.RequestID, "availability", "get", "availability computed",
		"trip", trip.String(), "booked", len(booked.BookedSeats), "locked", len(locked))

	return Availability{
		Trip:             trip,
		TotalSeats:       bus.SeatCount,
		AvailableSeats:   available,
		BookedSeats:      booked.BookedSeats,
		LockedSeats:      sortedUnique(locked),
		UnavailableSeats: unavailable,
		SeatGenderMap:    booked.SeatGenderMap,
	}, nil
}

func (s AvailabilityService) GetBookedSeats(ctx context.Context, trip domain.Trip) (BookedSeats, error) {
	if err := trip.Validate(); err != nil {
		return BookedSeats{}, err
	}
	return s.bookedSeats(ctx, trip)
}

func (s AvailabilityService) bookedSeats(ctx context.Context, trip domain.Trip) (BookedSeats, error) {
	rows, err := s.Bookings.BookedSeats(ctx, trip)
	if err != nil {
		return BookedSeats{}, intdb.ClassifyError("booked seats", err)
	}
	out := BookedSeats{
		BookedSeats:   make([]string, 0, len(rows)),
		SeatGenderMap: make(map[string]string, len(rows)),
	}
	for _, r := range rows {
		out.BookedSeats = append(out.BookedSeats, r.Seat)
		out.SeatGenderMap[r.Seat] = NormalizeGender(r.Gender)
	}
	out.BookedSeats = sortedUnique(out.BookedSeats)
	return out, nil
}

func union(a, b []string) []string {
	return sortedUnique(append(append([]string{}, a...), b...))
}

func sortedUnique(vals []string) []string {
	set := toSet(vals)
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
