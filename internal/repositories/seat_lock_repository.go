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

const tripWhere = `bus_id=? AND trip_date=? AND departure_time=?`

func tripArgs(t domain.Trip) []any {
	return []any{t.BusID, t.Date, t.DepartureTime}
}

// SeatLockRepository persists seat_locks. A row whose expires_at is not in the
// future is treated as absent by every method here.
type SeatLockRepository struct {
	DB intdb.Querier
}

// TryLock performs the conditional put for one seat. It takes over an expired
// row or extends the caller's own row; otherwise it inserts a fresh row and
// lets the unique key reject a concurrent holder. The bool is false when
// another owner holds an active lock.
func (r SeatLockRepository) TryLock(ctx context.Context, lock models.SeatLock, now time.Time) (bool, error) {
	args := []any{lock.OwnerKey, intdb.NullInt64(lock.UserID), intdb.NullIfEmpty(lock.Gender), lock.LockedAt, lock.ExpiresAt}
	args = append(args, tripArgs(lock.Trip)...)
	args = append(args, lock.Seat, now, lock.OwnerKey)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE seat_locks
		SET owner_key=?, user_id=?, gender=?, locked_at=?, expires_at=?
		WHERE `+tripWhere+` AND seat_no=?
		  AND (expires_at <= ? OR owner_key = ?)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("update seat lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO seat_locks (bus_id, trip_date, departure_time, seat_no, owner_key, user_id, gender, locked_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, lock.Trip.BusID, lock.Trip.Date, lock.Trip.DepartureTime, lock.Seat,
		lock.OwnerKey, intdb.NullInt64(lock.UserID), intdb.NullIfEmpty(lock.Gender), lock.LockedAt, lock.ExpiresAt)
	if err != nil {
		if intdb.IsDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert seat lock: %w", err)
	}
	return true, nil
}

// Release deletes the owner's active locks on the given seats.
func (r SeatLockRepository) Release(ctx context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (int64, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	args := append(tripArgs(trip), ownerKey)
	args = append(args, intdb.StringArgs(seats)...)
	args = append(args, now)

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM seat_locks
		WHERE `+tripWhere+` AND owner_key=?
		  AND seat_no IN (`+intdb.InPlaceholders(len(seats))+`)
		  AND expires_at > ?
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("release seat locks: %w", err)
	}
	return res.RowsAffected()
}

// ActiveLocks returns every unexpired lock on the trip, any owner.
func (r SeatLockRepository) ActiveLocks(ctx context.Context, trip domain.Trip, now time.Time) ([]models.SeatLock, error) {
	args := append(tripArgs(trip), now)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT seat_no, owner_key, user_id, COALESCE(gender, ''), locked_at, expires_at
		FROM seat_locks
		WHERE `+tripWhere+` AND expires_at > ?
		ORDER BY seat_no ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query active locks: %w", err)
	}
	defer rows.Close()

	out := []models.SeatLock{}
	for rows.Next() {
		var (
			l      = models.SeatLock{Trip: trip}
			userID sql.NullInt64
		)
		if err := rows.Scan(&l.Seat, &l.OwnerKey, &userID, &l.Gender, &l.LockedAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			id := userID.Int64
			l.UserID = &id
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// EarliestExpiry returns the soonest expiry among the owner's active locks on
// the trip, optionally narrowed to seats. ok is false when nothing is held.
func (r SeatLockRepository) EarliestExpiry(ctx context.Context, trip domain.Trip, ownerKey string, seats []string, now time.Time) (time.Time, bool, error) {
	query := `SELECT MIN(expires_at) FROM seat_locks WHERE ` + tripWhere + ` AND owner_key=? AND expires_at > ?`
	args := append(tripArgs(trip), ownerKey, now)
	if len(seats) > 0 {
		query += ` AND seat_no IN (` + intdb.InPlaceholders(len(seats)) + `)`
		args = append(args, intdb.StringArgs(seats)...)
	}

	var earliest sql.NullTime
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&earliest); err != nil {
		return time.Time{}, false, fmt.Errorf("query lock expiry: %w", err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	return earliest.Time, true, nil
}

// CountOwned counts seats among seats that hold an active lock belonging to
// ownerKey or, when userID is set, to that user under any key.
func (r SeatLockRepository) CountOwned(ctx context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	where, args := ownedClause(trip, seats, ownerKey, userID, now)

	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM seat_locks WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count owned locks: %w", err)
	}
	return n, nil
}

// DeleteOwned removes the caller's active locks on seats. It is called inside
// the commit transaction.
func (r SeatLockRepository) DeleteOwned(ctx context.Context, trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (int64, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	where, args := ownedClause(trip, seats, ownerKey, userID, now)

	res, err := r.DB.ExecContext(ctx, `DELETE FROM seat_locks WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete consumed locks: %w", err)
	}
	return res.RowsAffected()
}

// SweepExpired physically removes up to limit expired rows.
func (r SeatLockRepository) SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM seat_locks WHERE expires_at <= ? LIMIT ?`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return res.RowsAffected()
}

func ownedClause(trip domain.Trip, seats []string, ownerKey string, userID *int64, now time.Time) (string, []any) {
	where := tripWhere + ` AND seat_no IN (` + intdb.InPlaceholders(len(seats)) + `) AND expires_at > ?`
	args := append(tripArgs(trip), intdb.StringArgs(seats)...)
	args = append(args, now)
	if userID != nil && *userID > 0 {
		where += ` AND (owner_key=? OR user_id=?)`
		args = append(args, ownerKey, *userID)
	} else {
		where += ` AND owner_key=?`
		args = append(args, ownerKey)
	}
	return where, args
}
