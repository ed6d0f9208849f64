package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/metrics"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockSeats(t *testing.T, f *fixture, owner domain.OwnerKey, seats ...string) {
	t.Helper()
	res, err := f.locks.Acquire(context.Background(), AcquireInput{Trip: testTrip, Seats: seats, Owner: owner})
	require.NoError(t, err)
	require.True(t, res.AllOK())
}

func requireConflict(t *testing.T, err error, msg string) domain.ConflictError {
	t.Helper()
	var conflict domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, msg, conflict.Msg)
	return conflict
}

func TestCommitRequiresLock(t *testing.T) {
	f := newFixture(t)

	_, err := f.bookings.Commit(context.Background(), commitInput(clientOwner("a"), "1"))
	requireConflict(t, err, domain.MsgLockMissing)
	assert.Empty(t, f.store.bookings)
}

func TestCommitRejectsLockHeldByAnother(t *testing.T) {
	f := newFixture(t)
	lockSeats(t, f, clientOwner("a"), "1", "2")
	lockSeats(t, f, clientOwner("b"), "3")

	_, err := f.bookings.Commit(context.Background(), commitInput(clientOwner("a"), "1", "2", "3"))
	requireConflict(t, err, domain.MsgLockMissing)
	assert.Equal(t, 3, f.store.lockCount())
}

func TestCommitConsumesLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := clientOwner("a")
	lockSeats(t, f, owner, "1", "2")
	lockSeats(t, f, clientOwner("b"), "3")

	b, err := f.bookings.Commit(ctx, commitInput(owner, "1", "2"))
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, "RB202503010001", b.BookingNo)
	assert.Equal(t, models.PaymentPaid, b.PaymentStatus)
	assert.False(t, b.IsManual)
	assert.Nil(t, b.UserID)
	assert.True(t, decimal.NewFromInt(1200).Equal(b.Price.PricePerSeat))
	assert.True(t, decimal.NewFromInt(240).Equal(b.Price.ConvenienceFee))
	assert.True(t, decimal.NewFromInt(2640).Equal(b.Price.TotalAmount))
	assert.Equal(t, []models.SeatAllocation{{Seat: "1", Gender: "M"}, {Seat: "2", Gender: "M"}}, b.Allocations)

	// Only the committed owner's locks are gone.
	assert.Equal(t, 1, f.store.lockCount())
	assert.Equal(t, []string{models.AuditBookingCreated}, f.audit.actions())

	avail, err := f.avail.GetAvailability(ctx, testTrip)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, avail.BookedSeats)
	assert.Equal(t, []string{"3"}, avail.LockedSeats)

	b2, err := f.bookings.Commit(ctx, commitInput(clientOwner("b"), "3"))
	require.NoError(t, err)
	assert.Equal(t, "RB202503010002", b2.BookingNo)
}

func TestCommitByAuthenticatedUser(t *testing.T) {
	f := newFixture(t)
	owner := userOwner(5)
	lockSeats(t, f, owner, "4")

	b, err := f.bookings.Commit(context.Background(), commitInput(owner, "4"))
	require.NoError(t, err)
	require.NotNil(t, b.UserID)
	assert.EqualValues(t, 5, *b.UserID)
	assert.Equal(t, 0, f.store.lockCount())
}

func TestCommitRejectsBookedSeat(t *testing.T) {
	f := newFixture(t)
	owner := clientOwner("a")
	lockSeats(t, f, owner, "1", "2")
	f.store.sell(testTrip, "2")

	_, err := f.bookings.Commit(context.Background(), commitInput(owner, "1", "2"))
	conflict := requireConflict(t, err, domain.MsgSeatsAlreadyBooked)
	assert.Equal(t, []string{"2"}, conflict.Seats)
	assert.Equal(t, 2, f.store.lockCount())
}

func TestCommitRechecksInsideTransaction(t *testing.T) {
	f := newFixture(t)
	owner := clientOwner("a")
	lockSeats(t, f, owner, "9")
	f.store.beforeTx = func() { f.store.sell(testTrip, "9") }

	_, err := f.bookings.Commit(context.Background(), commitInput(owner, "9"))
	requireConflict(t, err, domain.MsgSeatsAlreadyBooked)
	assert.Len(t, f.store.bookings, 1)
	assert.Equal(t, 1, f.store.lockCount())
}

func TestCommitRollsBackOnAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := clientOwner("a")
	lockSeats(t, f, owner, "1")
	f.store.insertErr = &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}

	_, err := f.bookings.Commit(ctx, commitInput(owner, "1"))
	require.Error(t, err)
	assert.True(t, domain.IsTransactionAbort(err))
	assert.Empty(t, f.store.bookings)
	assert.Equal(t, 1, f.store.lockCount())
	assert.Empty(t, f.audit.actions())

	f.store.insertErr = nil
	b, err := f.bookings.Commit(ctx, commitInput(owner, "1"))
	require.NoError(t, err)
	assert.Equal(t, "RB202503010001", b.BookingNo)
}

func TestCommitAfterExpiry(t *testing.T) {
	f := newFixture(t)
	owner := clientOwner("a")
	lockSeats(t, f, owner, "1")
	f.clock.Advance(DefaultLockTTL)

	_, err := f.bookings.Commit(context.Background(), commitInput(owner, "1"))
	requireConflict(t, err, domain.MsgLockMissing)
}

func TestCommitSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t)
	owner := clientOwner("a")
	lockSeats(t, f, owner, "1")
	f.audit.err = errors.New("audit table unavailable")

	b, err := f.bookings.Commit(context.Background(), commitInput(owner, "1"))
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
}

func TestConcurrentCommitsSellSeatOnce(t *testing.T) {
	f := newFixture(t)
	owner := clientOwner("a")
	lockSeats(t, f, owner, "7", "8")

	var (
		wg        sync.WaitGroup
		ok        atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.Commit(context.Background(), commitInput(owner, "7", "8"))
			switch {
			case err == nil:
				ok.Add(1)
			case domain.IsConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := ManualInput{CommitInput: commitInput(clientOwner(fmt.Sprintf("desk-%d", i)), "8"), StaffID: 99, StaffRole: models.RoleAdmin}
			_, err := f.bookings.CommitManual(context.Background(), in)
			switch {
			case err == nil:
				ok.Add(1)
			case domain.IsConflict(err):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 19, conflicts.Load())
	assert.Len(t, f.store.bookings, 1)
}

func TestCommitManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lockSeats(t, f, clientOwner("web"), "5")

	in := ManualInput{CommitInput: commitInput(domain.OwnerKey{}, "5", "6"), StaffID: testOperatorID, StaffRole: models.RoleOperator}
	in.BoardingPoint, in.DroppingPoint = "", ""
	b, err := f.bookings.CommitManual(ctx, in)
	require.NoError(t, err)

	assert.True(t, b.IsManual)
	assert.True(t, b.Blocking())
	assert.Equal(t, models.PaymentManual, b.PaymentStatus)
	assert.Nil(t, b.UserID)
	require.NotNil(t, b.BookedBy)
	assert.Equal(t, testOperatorID, *b.BookedBy)
	assert.True(t, decimal.NewFromInt(2000).Equal(b.Price.TotalAmount))
	assert.True(t, b.Price.ConvenienceFee.IsZero())

	// The web customer's hold stays until it expires.
	assert.Equal(t, 1, f.store.lockCount())
	assert.Equal(t, []string{models.AuditManualBookingCreated}, f.audit.actions())

	_, err = f.bookings.CommitManual(ctx, in)
	requireConflict(t, err, domain.MsgSeatsAlreadyBooked)
}

func TestCommitManualAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CommitManual(ctx, ManualInput{CommitInput: commitInput(domain.OwnerKey{}, "1"), StaffID: testOperatorID + 1, StaffRole: models.RoleOperator})
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.bookings.CommitManual(ctx, ManualInput{CommitInput: commitInput(domain.OwnerKey{}, "1")})
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.bookings.CommitManual(ctx, ManualInput{CommitInput: commitInput(domain.OwnerKey{}, "1"), StaffID: 1, StaffRole: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestNormalizeCommit(t *testing.T) {
	age := 30
	base := commitInput(clientOwner("a"))

	tests := []struct {
		name   string
		mutate func(in *CommitInput)
		field  string
		want   []models.SeatAllocation
	}{
		{
			name:   "seats default to male",
			mutate: func(in *CommitInput) { in.SelectedSeats = []string{" a1", "b2"} },
			want:   []models.SeatAllocation{{Seat: "A1", Gender: "M"}, {Seat: "B2", Gender: "M"}},
		},
		{
			name: "allocations win",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1", "2"}
				in.SeatAllocations = []models.SeatAllocation{{Seat: "1", Gender: "f"}, {Seat: "2", Gender: "m"}}
			},
			want: []models.SeatAllocation{{Seat: "1", Gender: "F"}, {Seat: "2", Gender: "M"}},
		},
		{
			name: "passenger genders",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1", "2"}
				in.Passengers = []models.Passenger{
					{Seat: "2", Name: "Kamala", Gender: "F", Age: &age},
					{Seat: "1", Name: "Sunil", Gender: "M"},
				}
			},
			want: []models.SeatAllocation{{Seat: "1", Gender: "M"}, {Seat: "2", Gender: "F"}},
		},
		{
			name: "allocation length mismatch",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1", "2"}
				in.SeatAllocations = []models.SeatAllocation{{Seat: "1"}}
			},
			field: "seatAllocations",
		},
		{name: "no seats", mutate: func(in *CommitInput) {}, field: "seats"},
		{name: "blank seat", mutate: func(in *CommitInput) { in.SelectedSeats = []string{"1", " "} }, field: "seats"},
		{name: "duplicate seat", mutate: func(in *CommitInput) { in.SelectedSeats = []string{"a1", "A1"} }, field: "seats"},
		{name: "seat label too long", mutate: func(in *CommitInput) { in.SelectedSeats = []string{strings.Repeat("9", 17)} }, field: "seats"},
		{
			name: "too many seats",
			mutate: func(in *CommitInput) {
				for i := 0; i <= domain.MaxSeatsPerRequest; i++ {
					in.SelectedSeats = append(in.SelectedSeats, fmt.Sprint(i+1))
				}
			},
			field: "seats",
		},
		{
			name: "passengers miss a seat",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1", "2"}
				in.Passengers = []models.Passenger{{Seat: "1", Name: "Sunil"}}
			},
			field: "passengers",
		},
		{
			name: "missing name",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1"}
				in.Contact.FullName = "  "
			},
			field: "passenger.name",
		},
		{
			name: "missing mobile",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1"}
				in.Contact.Phone = ""
			},
			field: "passenger.mobile",
		},
		{
			name: "missing boarding point",
			mutate: func(in *CommitInput) {
				in.SelectedSeats = []string{"1"}
				in.BoardingPoint = ""
			},
			field: "boardingPoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			req, err := NormalizeCommit(in, true)
			if tt.field != "" {
				var verr domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Allocations)
		})
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := userOwner(5)
	lockSeats(t, f, owner, "1")
	b, err := f.bookings.Commit(ctx, commitInput(owner, "1"))
	require.NoError(t, err)

	err = f.bookings.Cancel(ctx, b.ID, 6, "")
	assert.True(t, domain.IsAuthorization(err))

	err = f.bookings.Cancel(ctx, 999, 5, "")
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, f.bookings.Cancel(ctx, b.ID, 5, "10.0.0.1"))
	seats, err := f.store.BlockingSeats(ctx, testTrip, []string{"1"}, false)
	require.NoError(t, err)
	assert.Empty(t, seats)
	assert.Equal(t, []string{models.AuditBookingCreated, models.AuditBookingCancelled}, f.audit.actions())

	res, err := f.locks.Acquire(ctx, AcquireInput{Trip: testTrip, Seats: []string{"1"}, Owner: clientOwner("b")})
	require.NoError(t, err)
	assert.True(t, res.AllOK())
}

func TestGetAndListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := userOwner(5)
	lockSeats(t, f, owner, "1")
	b, err := f.bookings.Commit(ctx, commitInput(owner, "1"))
	require.NoError(t, err)

	got, err := f.bookings.Get(ctx, b.ID, 5, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, b.BookingNo, got.BookingNo)

	_, err = f.bookings.Get(ctx, b.ID, 6, models.RoleUser)
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.bookings.Get(ctx, b.ID, 1, models.RoleAdmin)
	assert.NoError(t, err)

	mine, err := f.bookings.ListMine(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.bookings.ListMine(ctx, 0)
	assert.True(t, domain.IsAuthorization(err))
}

func TestObserveCommitCountsResults(t *testing.T) {
	conflicts := metrics.BookingCommits.WithLabelValues(kindManual, metrics.ResultConflict)
	aborted := metrics.BookingCommits.WithLabelValues(kindManual, metrics.ResultAborted)
	beforeConflicts, beforeAborted := testutil.ToFloat64(conflicts), testutil.ToFloat64(aborted)

	start := time.Now()
	observeCommit(kindManual, start, domain.ConflictError{})
	observeCommit(kindManual, start, fmt.Errorf("wrapped: %w", domain.TransactionAbortError{}))

	assert.Equal(t, beforeConflicts+1, testutil.ToFloat64(conflicts))
	assert.Equal(t, beforeAborted+1, testutil.ToFloat64(aborted))
}

func TestListAllForAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := userOwner(5)
	lockSeats(t, f, owner, "1")
	b, err := f.bookings.Commit(ctx, commitInput(owner, "1"))
	require.NoError(t, err)
	other := testTrip
	other.Date = "2025-03-11"
	f.store.sell(other, "1")

	all, err := f.bookings.ListAll(ctx, models.RoleAdmin, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byDate, err := f.bookings.ListAll(ctx, "ADMIN", models.BookingFilter{Date: testTrip.Date})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, b.BookingNo, byDate[0].BookingNo)

	byPoint, err := f.bookings.ListAll(ctx, models.RoleAdmin, models.BookingFilter{BoardingPoint: "colom"})
	require.NoError(t, err)
	assert.Len(t, byPoint, 1)

	limited, err := f.bookings.ListAll(ctx, models.RoleAdmin, models.BookingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = f.bookings.ListAll(ctx, models.RoleOperator, models.BookingFilter{})
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.bookings.ListAll(ctx, models.RoleAdmin, models.BookingFilter{Date: "11/03/2025"})
	assert.True(t, domain.IsValidation(err))
}
