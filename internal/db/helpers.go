package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"busreserve/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the booking core reacts to.
const (
	ErrDuplicateEntry   = 1062
	ErrLockWaitTimeout  = 1205
	ErrDeadlockDetected = 1213
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NullIfEmpty helps store optional strings as NULL.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullInt64 maps an optional id to a driver value.
func NullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// InPlaceholders returns "?,?,?" for n values.
func InPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// StringArgs converts seat labels into query args.
func StringArgs(vals []string) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
	}
	return out
}

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicateKey reports a unique-key violation.
func IsDuplicateKey(err error) bool {
	return mysqlNumber(err) == ErrDuplicateEntry
}

// IsRetryable reports failures that leave nothing written and can be retried
// as a whole: deadlocks, lock wait timeouts and dropped connections.
func IsRetryable(err error) bool {
	switch mysqlNumber(err) {
	case ErrDeadlockDetected, ErrLockWaitTimeout:
		return true
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone)
}

// ClassifyError converts raw store errors into domain errors. Errors that are
// already domain errors pass through untouched.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case domain.IsValidation(err), domain.IsConflict(err), domain.IsNotFound(err),
		domain.IsAuthorization(err), domain.IsTransactionAbort(err), domain.IsInternal(err):
		return err
	case IsDuplicateKey(err):
		return domain.ConflictError{Resource: "seat", Msg: domain.MsgSeatsAlreadyBooked, Err: err}
	case IsRetryable(err):
		return domain.TransactionAbortError{Op: op, Err: err}
	default:
		return domain.InternalError{Msg: op + " failed", Err: err}
	}
}
