package services

import (
	"context"
	"time"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/repositories"
)

// SeatLockStore is the persistence the lock service needs.
type SeatLockStore interface {
	TryLock(ctx context.Context, lock models.SeatLock, now time.Time) (bool, error)
	Release(ctx context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (int64, error)
	ActiveLocks(ctx context.Context, trip domain.Trip, now time.Time) ([]models.SeatLock, error)
	EarliestExpiry(ctx context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (time.Time, bool, error)
	CountOwned(ctx context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// BookingStore reads and removes committed bookings outside a transaction.
type BookingStore interface {
	BlockingSeats(ctx context.Context, trip domain.Trip, seats []string, forUpdate bool) ([]string, error)
	BookedSeats(ctx context.Context, trip domain.Trip) ([]models.BookedSeat, error)
	GetByID(ctx context.Context, id int64) (models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)
	List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// BusReader is the read-only collaborator owning fares, fees and layout size.
type BusReader interface {
	FindBus(ctx context.Context, id int64) (models.Bus, error)
}

// AuditWriter persists audit entries.
type AuditWriter interface {
	Insert(ctx context.Context, e models.AuditEntry) error
}

// CommitTx is the set of writes the commit protocol performs atomically.
type CommitTx interface {
	BlockingSeatsForUpdate(ctx context.Context, trip domain.Trip, seats []string) ([]string, error)
	NextBookingNo(ctx context.Context, day string) (string, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	ConsumeLocks(ctx context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int64, error)
}

// TxRunner commits everything fn does or nothing.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx CommitTx) error) error
}

// SQLTxRunner adapts repositories.Store to TxRunner.
type SQLTxRunner struct {
	Store repositories.Store
}

func (r SQLTxRunner) WithTx(ctx context.Context, fn func(tx CommitTx) error) error {
	return r.Store.WithTx(ctx, func(tx repositories.Tx) error {
		return fn(tx)
	})
}

// Auditor receives audit events after the fact.
type Auditor interface {
	Record(ctx context.Context, requestID string, e models.AuditEntry) error
}
