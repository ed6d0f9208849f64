package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/metrics"
	"busreserve/internal/utils"
)

const (
	DefaultLockTTL    = 15 * time.Minute
	DefaultLockMaxTTL = 30 * time.Minute
	sweepBatchSize    = 500
)

// SeatLockService hands out, extends and releases seat holds.
type SeatLockService struct {
	Locks     SeatLockStore
	Bookings  BookingStore
	Buses     BusReader
	TTL       time.Duration
	MaxTTL    time.Duration
	Now       func() time.Time
	RequestID string
}

type SeatLockOption func(*SeatLockService)

// WithLockTTL overrides the default hold duration.
func WithLockTTL(d time.Duration) SeatLockOption {
	return func(s *SeatLockService) {
		if d > 0 {
			s.TTL = d
		}
	}
}

// WithMaxLockTTL caps per-request hold durations.
func WithMaxLockTTL(d time.Duration) SeatLockOption {
	return func(s *SeatLockService) {
		if d > 0 {
			s.MaxTTL = d
		}
	}
}

// WithLockClock replaces time.Now, mostly for tests.
func WithLockClock(now func() time.Time) SeatLockOption {
	return func(s *SeatLockService) {
		if now != nil {
			s.Now = now
		}
	}
}

func NewSeatLockService(locks SeatLockStore, bookings BookingStore, buses BusReader, opts ...SeatLockOption) SeatLockService {
	s := SeatLockService{
		Locks:    locks,
		Bookings: bookings,
		Buses:    buses,
		TTL:      DefaultLockTTL,
		MaxTTL:   DefaultLockMaxTTL,
		Now:      utils.NowUTC,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.MaxTTL < s.TTL {
		s.MaxTTL = s.TTL
	}
	return s
}

func (s SeatLockService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

// AcquireInput is one hold request.
type AcquireInput struct {
	Trip  domain.Trip
	Seats []string
	Owner domain.OwnerKey
	// TTLMinutes is optional; zero means the default hold.
	TTLMinutes int
	// Genders is an optional seat -> "M"/"F" tag stored on the lock.
	Genders map[string]string
}

// AcquireResult reports each seat separately; a failed seat never undoes the others.
type AcquireResult struct {
	Results   []models.SeatLockResult `json:"results"`
	ExpiresAt time.Time               `json:"expiresAt"`
	TTL       time.Duration           `json:"-"`
}

// AllOK is false when at least one seat could not be held.
func (r AcquireResult) AllOK() bool {
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return true
}

// Locked returns the seats that were held or extended.
func (r AcquireResult) Locked() []string {
	out := []string{}
	for _, res := range r.Results {
		if res.OK {
			out = append(out, res.Seat)
		}
	}
	return out
}

// ttlFor clamps the requested minutes before converting them so a huge value
// cannot overflow into a negative duration.
func (s SeatLockService) ttlFor(minutes int) time.Duration {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	limit := s.MaxTTL
	if limit <= 0 {
		limit = DefaultLockMaxTTL
	}
	if limit < ttl {
		limit = ttl
	}
	if minutes > 0 {
		if int64(minutes) > int64(limit/time.Minute) {
			return limit
		}
		ttl = time.Duration(minutes) * time.Minute
	}
	if ttl > limit {
		ttl = limit
	}
	return ttl
}

// Acquire tries every seat independently. Seats sold to a blocking booking are
// reported as "already booked" without touching the lock table.
func (s SeatLockService) Acquire(ctx context.Context, in AcquireInput) (AcquireResult, error) {
	if err := in.Trip.Validate(); err != nil {
		return AcquireResult{}, err
	}
	seats := utils.DedupeSeats(in.Seats)
	if len(seats) == 0 {
		return AcquireResult{}, domain.ValidationError{Field: "seats", Msg: "must not be empty"}
	}
	if err := domain.ValidateSeats(seats); err != nil {
		return AcquireResult{}, err
	}
	if in.Owner.IsZero() {
		return AcquireResult{}, domain.ValidationError{Msg: "unable to identify lock owner"}
	}
	if _, err := s.Buses.FindBus(ctx, in.Trip.BusID); err != nil {
		return AcquireResult{}, intdb.ClassifyError("find bus", err)
	}

	booked, err := s.Bookings.BlockingSeats(ctx, in.Trip, seats, false)
	if err != nil {
		return AcquireResult{}, intdb.ClassifyError("acquire locks", err)
	}
	bookedSet := toSet(booked)
	genders := make(map[string]string, len(in.Genders))
	for seat, g := range in.Genders {
		genders[utils.NormalizeSeat(seat)] = g
	}

	now := s.now()
	ttl := s.ttlFor(in.TTLMinutes)
	out := AcquireResult{
		Results:   make([]models.SeatLockResult, 0, len(seats)),
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
	}

	var userID *int64
	if in.Owner.Authenticated() {
		id := in.Owner.UserID
		userID = &id
	}

	var storeErr error
	for _, seat := range seats {
		if _, ok := bookedSet[seat]; ok {
			out.Results = append(out.Results, models.SeatLockResult{Seat: seat, Reason: domain.ReasonAlreadyBooked})
			metrics.SeatLockAttempts.WithLabelValues(metrics.OutcomeAlreadyBooked).Inc()
			continue
		}

		ok, err := s.Locks.TryLock(ctx, models.SeatLock{
			Trip:      in.Trip,
			Seat:      seat,
			OwnerKey:  in.Owner.String(),
			UserID:    userID,
			Gender:    genderTag(genders, seat),
			LockedAt:  now,
			ExpiresAt: out.ExpiresAt,
		}, now)
		if err != nil {
			metrics.SeatLockAttempts.WithLabelValues(metrics.OutcomeError).Inc()
			utils.LogError(s.RequestID, "seat_lock", "acquire", fmt.Errorf("lock seat %s: %w", seat, err))
			if storeErr == nil {
				storeErr = err
			}
			out.Results = append(out.Results, models.SeatLockResult{Seat: seat, Reason: domain.ReasonLockUnavailable})
			continue
		}
		if !ok {
			out.Results = append(out.Results, models.SeatLockResult{Seat: seat, Reason: domain.ReasonHeldByAnother})
			metrics.SeatLockAttempts.WithLabelValues(metrics.OutcomeHeld).Inc()
			continue
		}
		out.Results = append(out.Results, models.SeatLockResult{Seat: seat, OK: true})
		metrics.SeatLockAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
	}
	// Holds taken earlier in this call stay valid and are reported; only a call
	// that held nothing at all turns a store failure into an error.
	if storeErr != nil && len(out.Locked()) == 0 {
		return AcquireResult{}, intdb.ClassifyError("acquire locks", storeErr)
	}
	metrics.SeatLockTTL.Observe(ttl.Seconds())

	utils.LogEvent(s.RequestID, "seat_lock", "acquire", "lock request processed",
		"trip", in.Trip.String(), "owner_kind", string(in.Owner.Kind),
		"requested", len(seats), "locked", len(out.Locked()))
	return out, nil
}

// Release deletes the owner's active holds on seats. Seats held by anyone else
// are silently skipped.
func (s SeatLockService) Release(ctx context.Context, trip domain.Trip, seats []string, owner domain.OwnerKey) (int64, error) {
	if err := trip.Validate(); err != nil {
		return 0, err
	}
	seats = utils.DedupeSeats(seats)
	if len(seats) == 0 {
		return 0, domain.ValidationError{Field: "seats", Msg: "must not be empty"}
	}
	if err := domain.ValidateSeats(seats); err != nil {
		return 0, err
	}
	if owner.IsZero() {
		return 0, domain.ValidationError{Msg: "unable to identify lock owner"}
	}

	n, err := s.Locks.Release(ctx, trip, owner.String(), seats, s.now())
	if err != nil {
		return 0, intdb.ClassifyError("release locks", err)
	}
	metrics.SeatLocksReleased.Add(float64(n))
	utils.LogEvent(s.RequestID, "seat_lock", "release", "locks released",
		"trip", trip.String(), "requested", len(seats), "released", n)
	return n, nil
}

// HoldStatus is the time left on the owner's soonest-expiring hold.
type HoldStatus struct {
	Remaining time.Duration
	ExpiresAt *time.Time
}

// RemainingMillis is the remaining hold in whole milliseconds.
func (h HoldStatus) RemainingMillis() int64 {
	return h.Remaining.Milliseconds()
}

// RemainingHold returns zero when the owner holds nothing on the trip.
func (s SeatLockService) RemainingHold(ctx context.Context, trip domain.Trip, owner domain.OwnerKey, seats []string) (HoldStatus, error) {
	if err := trip.Validate(); err != nil {
		return HoldStatus{}, err
	}
	if owner.IsZero() {
		return HoldStatus{}, domain.ValidationError{Msg: "unable to identify lock owner"}
	}

	seats = utils.DedupeSeats(seats)
	if err := domain.ValidateSeats(seats); err != nil {
		return HoldStatus{}, err
	}

	now := s.now()
	expiresAt, ok, err := s.Locks.EarliestExpiry(ctx, trip, owner.String(), seats, now)
	if err != nil {
		return HoldStatus{}, intdb.ClassifyError("remaining hold", err)
	}
	if !ok || !expiresAt.After(now) {
		return HoldStatus{}, nil
	}
	return HoldStatus{Remaining: expiresAt.Sub(now), ExpiresAt: &expiresAt}, nil
}

// SweepExpired deletes expired rows in batches. Reads never depend on it.
func (s SeatLockService) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for {
		n, err := s.Locks.SweepExpired(ctx, now, sweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("sweep expired locks: %w", err)
		}
		total += n
		if n < sweepBatchSize || ctx.Err() != nil {
			break
		}
	}
	metrics.SeatLocksSwept.Add(float64(total))
	return total, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s SeatLockService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.LogEvent("", "seat_lock", "sweeper_start", "expired lock sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			utils.LogEvent("", "seat_lock", "sweeper_stop", "expired lock sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				utils.LogError("", "seat_lock", "sweep", err)
				continue
			}
			if n > 0 {
				utils.LogEvent("", "seat_lock", "sweep", "expired locks removed", "count", n)
			}
		}
	}
}

// NormalizeGender maps anything other than "F" to "M".
func NormalizeGender(g string) string {
	if strings.EqualFold(strings.TrimSpace(g), models.GenderFemale) {
		return models.GenderFemale
	}
	return models.GenderMale
}

func genderTag(genders map[string]string, seat string) string {
	g, ok := genders[seat]
	if !ok || strings.TrimSpace(g) == "" {
		return ""
	}
	return NormalizeGender(g)
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}
