package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"

	"github.com/go-sql-driver/mysql"
)

type seatKey struct {
	trip domain.Trip
	seat string
}

// memStore mimics the MySQL store: one row per (trip, seat) in each table and
// a transaction that either applies completely or not at all.
type memStore struct {
	mu        sync.Mutex
	locks     map[seatKey]models.SeatLock
	bookings  map[int64]models.Booking
	soldSeats map[seatKey]int64
	counters  map[string]int
	nextID    int64
	buses     map[int64]models.Bus

	// beforeTx runs right before a transaction starts, outside the store lock.
	beforeTx func()
	// insertErr makes InsertBooking fail after the row checks.
	insertErr error
}

func newMemStore(buses ...models.Bus) *memStore {
	s := &memStore{
		locks:     map[seatKey]models.SeatLock{},
		bookings:  map[int64]models.Booking{},
		soldSeats: map[seatKey]int64{},
		counters:  map[string]int{},
		buses:     map[int64]models.Bus{},
	}
	for _, b := range buses {
		s.buses[b.ID] = b
	}
	return s
}

func (s *memStore) TryLock(_ context.Context, lock models.SeatLock, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := seatKey{lock.Trip, lock.Seat}
	if cur, ok := s.locks[k]; ok && cur.ActiveAt(now) && cur.OwnerKey != lock.OwnerKey {
		return false, nil
	}
	s.locks[k] = lock
	return true, nil
}

func (s *memStore) Release(_ context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, seat := range seats {
		k := seatKey{trip, seat}
		if cur, ok := s.locks[k]; ok && cur.OwnerKey == ownerKey && cur.ActiveAt(now) {
			delete(s.locks, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ActiveLocks(_ context.Context, trip domain.Trip, now time.Time) ([]models.SeatLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.SeatLock{}
	for k, l := range s.locks {
		if k.trip == trip && l.ActiveAt(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out, nil
}

func (s *memStore) EarliestExpiry(_ context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := toSet(seats)
	var (
		earliest time.Time
		found    bool
	)
	for k, l := range s.locks {
		if k.trip != trip || l.OwnerKey != ownerKey || !l.ActiveAt(now) {
			continue
		}
		if _, ok := filter[k.seat]; len(seats) > 0 && !ok {
			continue
		}
		if !found || l.ExpiresAt.Before(earliest) {
			earliest, found = l.ExpiresAt, true
		}
	}
	return earliest, found, nil
}

func ownsLock(l models.SeatLock, ownerKey string, userID *int64) bool {
	if l.OwnerKey == ownerKey {
		return true
	}
	return userID != nil && l.UserID != nil && *l.UserID == *userID
}

func (s *memStore) CountOwned(_ context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, seat := range seats {
		if l, ok := s.locks[seatKey{trip, seat}]; ok && l.ActiveAt(now) && ownsLock(l, ownerKey, userID) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SweepExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, l := range s.locks {
		if int(n) >= limit {
			break
		}
		if !l.ActiveAt(now) {
			delete(s.locks, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) blockingSeats(trip domain.Trip, seats []string) []string {
	out := []string{}
	for _, seat := range seats {
		if _, ok := s.soldSeats[seatKey{trip, seat}]; ok {
			out = append(out, seat)
		}
	}
	sort.Strings(out)
	return out
}

func (s *memStore) BlockingSeats(_ context.Context, trip domain.Trip, seats []string, _ bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockingSeats(trip, seats), nil
}

func (s *memStore) BookedSeats(_ context.Context, trip domain.Trip) ([]models.BookedSeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.BookedSeat{}
	for k, id := range s.soldSeats {
		if k.trip != trip {
			continue
		}
		gender := models.GenderMale
		for _, a := range s.bookings[id].Allocations {
			if a.Seat == k.seat {
				gender = a.Gender
			}
		}
		out = append(out, models.BookedSeat{BookingID: id, Seat: k.seat, Gender: gender})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return b, nil
}

func (s *memStore) ListByUser(_ context.Context, userID int64) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Booking{}
	for _, b := range s.bookings {
		if b.OwnedBy(userID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) List(_ context.Context, f models.BookingFilter) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Booking{}
	for _, b := range s.bookings {
		if f.Date != "" && b.Trip.Date != f.Date {
			continue
		}
		if f.BoardingPoint != "" && !strings.Contains(strings.ToLower(b.BoardingPoint), strings.ToLower(f.BoardingPoint)) {
			continue
		}
		if f.DroppingPoint != "" && !strings.Contains(strings.ToLower(b.DroppingPoint), strings.ToLower(f.DroppingPoint)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset >= len(out) {
		return []models.Booking{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return 0, nil
	}
	for _, seat := range b.Seats {
		delete(s.soldSeats, seatKey{b.Trip, seat})
	}
	delete(s.bookings, id)
	return 1, nil
}

func (s *memStore) FindBus(_ context.Context, id int64) (models.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buses[id]
	if !ok {
		return models.Bus{}, domain.NotFoundError{Resource: "bus"}
	}
	return b, nil
}

// WithTx serializes transactions and restores a snapshot when fn fails.
func (s *memStore) WithTx(ctx context.Context, fn func(tx CommitTx) error) error {
	if s.beforeTx != nil {
		s.beforeTx()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	locks     map[seatKey]models.SeatLock
	bookings  map[int64]models.Booking
	soldSeats map[seatKey]int64
	counters  map[string]int
	nextID    int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		locks:     make(map[seatKey]models.SeatLock, len(s.locks)),
		bookings:  make(map[int64]models.Booking, len(s.bookings)),
		soldSeats: make(map[seatKey]int64, len(s.soldSeats)),
		counters:  make(map[string]int, len(s.counters)),
		nextID:    s.nextID,
	}
	for k, v := range s.locks {
		snap.locks[k] = v
	}
	for k, v := range s.bookings {
		snap.bookings[k] = v
	}
	for k, v := range s.soldSeats {
		snap.soldSeats[k] = v
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.locks = snap.locks
	s.bookings = snap.bookings
	s.soldSeats = snap.soldSeats
	s.counters = snap.counters
	s.nextID = snap.nextID
}

// sell writes a confirmed booking directly, bypassing every check.
func (s *memStore) sell(trip domain.Trip, seats ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	b := models.Booking{ID: id, Trip: trip, Seats: seats, PaymentStatus: models.PaymentPaid}
	for _, seat := range seats {
		b.Allocations = append(b.Allocations, models.SeatAllocation{Seat: seat, Gender: models.GenderFemale})
		s.soldSeats[seatKey{trip, seat}] = id
	}
	s.bookings[id] = b
	return id
}

func (s *memStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// memTx runs with memStore.mu held.
type memTx struct {
	s *memStore
}

func (tx memTx) BlockingSeatsForUpdate(_ context.Context, trip domain.Trip, seats []string) ([]string, error) {
	return tx.s.blockingSeats(trip, seats), nil
}

func (tx memTx) NextBookingNo(_ context.Context, day string) (string, error) {
	tx.s.counters[day]++
	return fmt.Sprintf("RB%s%04d", day, tx.s.counters[day]), nil
}

func (tx memTx) InsertBooking(_ context.Context, b *models.Booking) error {
	for _, seat := range b.Seats {
		if _, taken := tx.s.soldSeats[seatKey{b.Trip, seat}]; taken {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_booking_seats_seat'"}
		}
	}
	tx.s.nextID++
	b.ID = tx.s.nextID
	for _, seat := range b.Seats {
		tx.s.soldSeats[seatKey{b.Trip, seat}] = b.ID
	}
	tx.s.bookings[b.ID] = *b
	if tx.s.insertErr != nil {
		return tx.s.insertErr
	}
	return nil
}

func (tx memTx) ConsumeLocks(_ context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int64, error) {
	var n int64
	for _, seat := range seats {
		k := seatKey{trip, seat}
		if l, ok := tx.s.locks[k]; ok && l.ActiveAt(now) && ownsLock(l, ownerKey, userID) {
			delete(tx.s.locks, k)
			n++
		}
	}
	return n, nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
}

func (a *recordingAuditor) Record(_ context.Context, _ string, e models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []string{}
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
