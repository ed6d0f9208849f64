package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		email VARCHAR(190) NOT NULL,
		phone VARCHAR(40) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS buses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		operator_id BIGINT NOT NULL,
		price DECIMAL(12,2) NOT NULL DEFAULT 0,
		fee_type VARCHAR(20) NOT NULL DEFAULT 'fixed',
		fee_value DECIMAL(12,2) NOT NULL DEFAULT 0,
		seat_count INT NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bus_fares (
		bus_id BIGINT NOT NULL,
		boarding_point VARCHAR(120) NOT NULL,
		dropping_point VARCHAR(120) NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (bus_id, boarding_point, dropping_point)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_locks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		bus_id BIGINT NOT NULL,
		trip_date DATE NOT NULL,
		departure_time CHAR(5) NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		owner_key VARCHAR(190) NOT NULL,
		user_id BIGINT NULL,
		gender CHAR(1) NULL,
		locked_at DATETIME(3) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_seat_locks_seat (bus_id, trip_date, departure_time, seat_no),
		KEY idx_seat_locks_expires (expires_at),
		KEY idx_seat_locks_owner (owner_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_no VARCHAR(20) NOT NULL,
		user_id BIGINT NULL,
		booked_by BIGINT NULL,
		bus_id BIGINT NOT NULL,
		trip_date DATE NOT NULL,
		departure_time CHAR(5) NOT NULL,
		passenger_name VARCHAR(120) NOT NULL,
		passenger_phone VARCHAR(40) NOT NULL,
		passenger_nic VARCHAR(40) NOT NULL,
		passenger_email VARCHAR(190) NULL,
		boarding_point VARCHAR(120) NOT NULL,
		dropping_point VARCHAR(120) NOT NULL,
		price_per_seat DECIMAL(12,2) NOT NULL,
		base_amount DECIMAL(12,2) NOT NULL,
		convenience_fee DECIMAL(12,2) NOT NULL,
		total_amount DECIMAL(12,2) NOT NULL,
		payment_status VARCHAR(20) NOT NULL,
		is_manual TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_bookings_no (booking_no),
		KEY idx_bookings_trip (bus_id, trip_date, departure_time),
		KEY idx_bookings_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT NOT NULL,
		bus_id BIGINT NOT NULL,
		trip_date DATE NOT NULL,
		departure_time CHAR(5) NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		gender CHAR(1) NOT NULL DEFAULT 'M',
		UNIQUE KEY uq_booking_seats_seat (bus_id, trip_date, departure_time, seat_no),
		KEY idx_booking_seats_booking (booking_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_passengers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		name VARCHAR(120) NOT NULL,
		age INT NULL,
		gender CHAR(1) NOT NULL DEFAULT 'M',
		KEY idx_booking_passengers_booking (booking_id),
		CONSTRAINT fk_booking_passengers_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_counters (
		counter_date CHAR(8) PRIMARY KEY,
		seq INT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NULL,
		action VARCHAR(60) NOT NULL,
		details JSON NULL,
		ip VARCHAR(64) NULL,
		created_at DATETIME(3) NOT NULL,
		KEY idx_audit_logs_action (action)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// RequiredTables lists what the booking core reads and writes.
var RequiredTables = []string{
	"users", "buses", "bus_fares", "seat_locks", "bookings",
	"booking_seats", "booking_passengers", "booking_counters", "audit_logs",
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// HasTable checks information_schema for a table in the current database.
func HasTable(ctx context.Context, q Querier, table string) (bool, error) {
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		LIMIT 1
	`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return name.Valid && name.String != "", nil
}

// MissingTables returns the required tables that do not exist yet.
func MissingTables(ctx context.Context, q Querier) ([]string, error) {
	var missing []string
	for _, t := range RequiredTables {
		ok, err := HasTable(ctx, q, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, t)
		}
	}
	return missing, nil
}
