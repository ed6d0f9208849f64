package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"

	"github.com/shopspring/decimal"
)

const blockingPredicate = `(b.payment_status = 'Paid' OR b.is_manual = 1)`

// BookingRepository reads and writes bookings with their seats and passengers.
// Only blocking bookings ever get booking_seats rows, so the unique key on
// booking_seats is what makes a second sale of a seat fail.
type BookingRepository struct {
	DB intdb.Querier
}

// BlockingSeats returns which of seats are already sold on the trip. With
// forUpdate the matching rows are locked until the surrounding transaction ends.
func (r BookingRepository) BlockingSeats(ctx context.Context, trip domain.Trip, seats []string, forUpdate bool) ([]string, error) {
	if len(seats) == 0 {
		return nil, nil
	}
	query := `
		SELECT bs.seat_no
		FROM booking_seats bs
		JOIN bookings b ON b.id = bs.booking_id
		WHERE bs.bus_id=? AND bs.trip_date=? AND bs.departure_time=?
		  AND bs.seat_no IN (` + intdb.InPlaceholders(len(seats)) + `)
		  AND ` + blockingPredicate + `
		ORDER BY bs.seat_no ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	args := append(tripArgs(trip), intdb.StringArgs(seats)...)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocking seats: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		out = append(out, seat)
	}
	return out, rows.Err()
}

// BookedSeats lists every seat held by a blocking booking on the trip.
func (r BookingRepository) BookedSeats(ctx context.Context, trip domain.Trip) ([]models.BookedSeat, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT bs.booking_id, bs.seat_no, bs.gender
		FROM booking_seats bs
		JOIN bookings b ON b.id = bs.booking_id
		WHERE bs.bus_id=? AND bs.trip_date=? AND bs.departure_time=?
		  AND `+blockingPredicate+`
		ORDER BY bs.seat_no ASC
	`, tripArgs(trip)...)
	if err != nil {
		return nil, fmt.Errorf("query booked seats: %w", err)
	}
	defer rows.Close()

	out := []models.BookedSeat{}
	for rows.Next() {
		var s models.BookedSeat
		if err := rows.Scan(&s.BookingID, &s.Seat, &s.Gender); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NextBookingNo bumps the per-day counter and formats RB<yyyymmdd><seq4>.
// Inside a transaction the counter row stays locked until commit.
func (r BookingRepository) NextBookingNo(ctx context.Context, day string) (string, error) {
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO booking_counters (counter_date, seq) VALUES (?, 1)
		ON DUPLICATE KEY UPDATE seq = seq + 1
	`, day); err != nil {
		return "", fmt.Errorf("bump booking counter: %w", err)
	}

	var seq int
	if err := r.DB.QueryRowContext(ctx, `SELECT seq FROM booking_counters WHERE counter_date=?`, day).Scan(&seq); err != nil {
		return "", fmt.Errorf("read booking counter: %w", err)
	}
	return fmt.Sprintf("RB%s%04d", day, seq), nil
}

// Insert writes the booking, its seats and its passengers and sets b.ID.
// A duplicate seat surfaces as the raw driver error for the caller to classify.
func (r BookingRepository) Insert(ctx context.Context, b *models.Booking) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO bookings (
			booking_no, user_id, booked_by, bus_id, trip_date, departure_time,
			passenger_name, passenger_phone, passenger_nic, passenger_email,
			boarding_point, dropping_point,
			price_per_seat, base_amount, convenience_fee, total_amount,
			payment_status, is_manual, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.BookingNo, intdb.NullInt64(b.UserID), intdb.NullInt64(b.BookedBy),
		b.Trip.BusID, b.Trip.Date, b.Trip.DepartureTime,
		b.Contact.FullName, b.Contact.Phone, b.Contact.NIC, intdb.NullIfEmpty(b.Contact.Email),
		b.BoardingPoint, b.DroppingPoint,
		b.Price.PricePerSeat.StringFixed(2), b.Price.BaseAmount.StringFixed(2),
		b.Price.ConvenienceFee.StringFixed(2), b.Price.TotalAmount.StringFixed(2),
		b.PaymentStatus, b.IsManual, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id

	if len(b.Allocations) > 0 {
		var (
			values []string
			args   []any
		)
		for _, a := range b.Allocations {
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, id, b.Trip.BusID, b.Trip.Date, b.Trip.DepartureTime, a.Seat, a.Gender)
		}
		if _, err := r.DB.ExecContext(ctx, `
			INSERT INTO booking_seats (booking_id, bus_id, trip_date, departure_time, seat_no, gender)
			VALUES `+strings.Join(values, ", "), args...); err != nil {
			return fmt.Errorf("insert booking seats: %w", err)
		}
	}

	if len(b.Passengers) > 0 {
		var (
			values []string
			args   []any
		)
		for _, p := range b.Passengers {
			var age any
			if p.Age != nil {
				age = *p.Age
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, id, p.Seat, p.Name, age, p.Gender)
		}
		if _, err := r.DB.ExecContext(ctx, `
			INSERT INTO booking_passengers (booking_id, seat_no, name, age, gender)
			VALUES `+strings.Join(values, ", "), args...); err != nil {
			return fmt.Errorf("insert booking passengers: %w", err)
		}
	}
	return nil
}

const bookingColumns = `
	id, booking_no, user_id, booked_by, bus_id,
	DATE_FORMAT(trip_date, '%Y-%m-%d'), departure_time,
	passenger_name, passenger_phone, passenger_nic, COALESCE(passenger_email, ''),
	boarding_point, dropping_point,
	price_per_seat, base_amount, convenience_fee, total_amount,
	payment_status, is_manual, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b                       models.Booking
		userID, bookedBy        sql.NullInt64
		perSeat, base, fee, tot decimal.Decimal
	)
	err := row.Scan(
		&b.ID, &b.BookingNo, &userID, &bookedBy, &b.Trip.BusID,
		&b.Trip.Date, &b.Trip.DepartureTime,
		&b.Contact.FullName, &b.Contact.Phone, &b.Contact.NIC, &b.Contact.Email,
		&b.BoardingPoint, &b.DroppingPoint,
		&perSeat, &base, &fee, &tot,
		&b.PaymentStatus, &b.IsManual, &b.CreatedAt,
	)
	if err != nil {
		return b, err
	}
	if userID.Valid {
		v := userID.Int64
		b.UserID = &v
	}
	if bookedBy.Valid {
		v := bookedBy.Int64
		b.BookedBy = &v
	}
	b.Price = models.Quote{PricePerSeat: perSeat, BaseAmount: base, ConvenienceFee: fee, TotalAmount: tot}
	return b, nil
}

// GetByID loads one booking with seats and passengers.
func (r BookingRepository) GetByID(ctx context.Context, id int64) (models.Booking, error) {
	if id <= 0 {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	b, err := scanBooking(r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	if err := r.loadDetails(ctx, &b); err != nil {
		return models.Booking{}, err
	}
	return b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r BookingRepository) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	return r.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
}

// List is the staff view over every booking. Point and email filters are
// case-insensitive substring matches.
func (r BookingRepository) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.Date != "" {
		where = append(where, "trip_date=?")
		args = append(args, f.Date)
	}
	if f.BoardingPoint != "" {
		where = append(where, "LOWER(boarding_point) LIKE ?")
		args = append(args, likeContains(f.BoardingPoint))
	}
	if f.DroppingPoint != "" {
		where = append(where, "LOWER(dropping_point) LIKE ?")
		args = append(args, likeContains(f.DroppingPoint))
	}
	if f.UserEmail != "" {
		where = append(where, "user_id IN (SELECT id FROM users WHERE LOWER(email) LIKE ?)")
		args = append(args, likeContains(f.UserEmail))
	}
	args = append(args, f.Limit, f.Offset)

	return r.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
}

func likeContains(s string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + esc.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func (r BookingRepository) listBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if err := r.loadDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r BookingRepository) loadDetails(ctx context.Context, b *models.Booking) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT seat_no, gender FROM booking_seats WHERE booking_id=? ORDER BY id ASC`, b.ID)
	if err != nil {
		return fmt.Errorf("load booking seats: %w", err)
	}
	b.Seats = []string{}
	b.Allocations = []models.SeatAllocation{}
	for rows.Next() {
		var a models.SeatAllocation
		if err := rows.Scan(&a.Seat, &a.Gender); err != nil {
			rows.Close()
			return err
		}
		b.Seats = append(b.Seats, a.Seat)
		b.Allocations = append(b.Allocations, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	b.Price.SeatCount = len(b.Seats)

	rows, err = r.DB.QueryContext(ctx, `SELECT seat_no, name, age, gender FROM booking_passengers WHERE booking_id=? ORDER BY id ASC`, b.ID)
	if err != nil {
		return fmt.Errorf("load booking passengers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p   models.Passenger
			age sql.NullInt64
		)
		if err := rows.Scan(&p.Seat, &p.Name, &age, &p.Gender); err != nil {
			return err
		}
		if age.Valid {
			v := int(age.Int64)
			p.Age = &v
		}
		b.Passengers = append(b.Passengers, p)
	}
	return rows.Err()
}

// Delete removes a booking; seats and passengers go with it.
func (r BookingRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM bookings WHERE id=?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete booking: %w", err)
	}
	return res.RowsAffected()
}
