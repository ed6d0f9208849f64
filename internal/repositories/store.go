package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
)

const (
	txAttempts       = 3
	txDefaultBackoff = 25 * time.Millisecond
)

// Store runs units of work against one *sql.DB.
type Store struct {
	DB *sql.DB
	// Backoff is the pause before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// Tx exposes the repositories bound to one transaction.
type Tx struct {
	Bookings  BookingRepository
	SeatLocks SeatLockRepository
}

// WithTx runs fn at REPEATABLE READ and commits when it returns nil. Any error,
// including a failed commit, leaves nothing written. Deadlocks, lock wait
// timeouts and dropped connections before commit rerun fn from the start, up
// to txAttempts times. fn must therefore be safe to call again.
func (s Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = txDefaultBackoff
	}
	for attempt := 1; ; attempt++ {
		retry, err := s.runTx(ctx, fn)
		if err == nil || !retry || attempt == txAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// runTx reports whether a failure may be retried. A failed commit never is,
// since the outcome on the server is unknown.
func (s Store) runTx(ctx context.Context, fn func(tx Tx) error) (bool, error) {
	sqlTx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return intdb.IsRetryable(err), fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(Tx{
		Bookings:  BookingRepository{DB: sqlTx},
		SeatLocks: SeatLockRepository{DB: sqlTx},
	}); err != nil {
		return intdb.IsRetryable(err), err
	}

	if err := sqlTx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return false, nil
}

func (tx Tx) BlockingSeatsForUpdate(ctx context.Context, trip domain.Trip, seats []string) ([]string, error) {
	return tx.Bookings.BlockingSeats(ctx, trip, seats, true)
}

func (tx Tx) NextBookingNo(ctx context.Context, day string) (string, error) {
	return tx.Bookings.NextBookingNo(ctx, day)
}

func (tx Tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return tx.Bookings.Insert(ctx, b)
}

func (tx Tx) ConsumeLocks(ctx context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int64, error) {
	return tx.SeatLocks.DeleteOwned(ctx, trip, seats, ownerKey, userID, now)
}
