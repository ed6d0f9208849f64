package services

import (
	"context"
	"sort"
	"strings"
	"time"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/metrics"
	"busreserve/internal/utils"
)

const (
	kindOnline = "online"
	kindManual = "manual"
)

// BookingService owns the commit protocol: every way of creating a booking
// goes through commit, after its input has been normalized.
type BookingService struct {
	Locks     SeatLockStore
	Bookings  BookingStore
	Buses     BusReader
	Tx        TxRunner
	Audit     Auditor
	Now       func() time.Time
	RequestID string
}

func (s BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

// CommitInput accepts every request shape: a flat seat list, structured seat
// allocations, a per-seat passenger list, or a mix.
type CommitInput struct {
	Trip            domain.Trip
	SelectedSeats   []string
	SeatAllocations []models.SeatAllocation
	Passengers      []models.Passenger
	Contact         models.Contact
	BoardingPoint   string
	DroppingPoint   string
	Owner           domain.OwnerKey
	IP              string
}

// ManualInput is an operator-entered sale for an offline customer.
type ManualInput struct {
	CommitInput
	StaffID   int64
	StaffRole string
}

// CommitRequest is the single internal shape the protocol runs on.
type CommitRequest struct {
	Trip          domain.Trip
	Seats         []string
	Allocations   []models.SeatAllocation
	Passengers    []models.Passenger
	Contact       models.Contact
	BoardingPoint string
	DroppingPoint string
}

// NormalizeCommit validates in and folds it into a CommitRequest. Gender per
// seat comes from explicit allocations, else the passenger list, else "M".
func NormalizeCommit(in CommitInput, requirePoints bool) (CommitRequest, error) {
	trip := in.Trip
	if err := trip.Validate(); err != nil {
		return CommitRequest{}, err
	}

	if len(in.SeatAllocations) > 0 && len(in.SelectedSeats) > 0 && len(in.SeatAllocations) != len(in.SelectedSeats) {
		return CommitRequest{}, domain.ValidationError{Field: "seatAllocations", Msg: "length must match selectedSeats length"}
	}

	var raw []string
	if len(in.SeatAllocations) > 0 {
		for _, a := range in.SeatAllocations {
			raw = append(raw, a.Seat)
		}
	} else {
		raw = in.SelectedSeats
	}
	if len(raw) == 0 {
		return CommitRequest{}, domain.ValidationError{Field: "seats", Msg: "must not be empty"}
	}
	if len(raw) > domain.MaxSeatsPerRequest {
		return CommitRequest{}, domain.ValidateSeats(raw)
	}

	seats := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		seat := utils.NormalizeSeat(r)
		if seat == "" {
			return CommitRequest{}, domain.ValidationError{Field: "seats", Msg: "contains an empty seat"}
		}
		if _, dup := seen[seat]; dup {
			return CommitRequest{}, domain.ValidationError{Field: "seats", Msg: "duplicate seat " + seat}
		}
		seen[seat] = struct{}{}
		seats = append(seats, seat)
	}
	if err := domain.ValidateSeats(seats); err != nil {
		return CommitRequest{}, err
	}

	passengers := make([]models.Passenger, 0, len(in.Passengers))
	for _, p := range in.Passengers {
		passengers = append(passengers, models.Passenger{
			Seat:   utils.NormalizeSeat(p.Seat),
			Name:   utils.NormalizeSpace(p.Name),
			Age:    p.Age,
			Gender: NormalizeGender(p.Gender),
		})
	}
	if len(passengers) > 0 && !sameSeats(seats, passengers) {
		return CommitRequest{}, domain.ValidationError{Field: "passengers", Msg: "must cover every selected seat"}
	}

	contact := models.Contact{
		FullName: utils.NormalizeSpace(in.Contact.FullName),
		Phone:    strings.TrimSpace(in.Contact.Phone),
		NIC:      strings.TrimSpace(in.Contact.NIC),
		Email:    strings.TrimSpace(in.Contact.Email),
	}
	if contact.FullName == "" {
		return CommitRequest{}, domain.ValidationError{Field: "passenger.name", Msg: "is required"}
	}
	if contact.Phone == "" {
		return CommitRequest{}, domain.ValidationError{Field: "passenger.mobile", Msg: "is required"}
	}

	boarding := utils.NormalizeSpace(in.BoardingPoint)
	dropping := utils.NormalizeSpace(in.DroppingPoint)
	if requirePoints {
		if boarding == "" {
			return CommitRequest{}, domain.ValidationError{Field: "boardingPoint", Msg: "is required"}
		}
		if dropping == "" {
			return CommitRequest{}, domain.ValidationError{Field: "droppingPoint", Msg: "is required"}
		}
	}

	return CommitRequest{
		Trip:          trip,
		Seats:         seats,
		Allocations:   allocate(seats, in.SeatAllocations, passengers),
		Passengers:    passengers,
		Contact:       contact,
		BoardingPoint: boarding,
		DroppingPoint: dropping,
	}, nil
}

func allocate(seats []string, explicit []models.SeatAllocation, passengers []models.Passenger) []models.SeatAllocation {
	genders := make(map[string]string, len(seats))
	switch {
	case len(explicit) > 0:
		for _, a := range explicit {
			genders[utils.NormalizeSeat(a.Seat)] = NormalizeGender(a.Gender)
		}
	case len(passengers) > 0:
		for _, p := range passengers {
			genders[p.Seat] = p.Gender
		}
	}

	out := make([]models.SeatAllocation, 0, len(seats))
	for _, seat := range seats {
		g, ok := genders[seat]
		if !ok {
			g = models.GenderMale
		}
		out = append(out, models.SeatAllocation{Seat: seat, Gender: g})
	}
	return out
}

func sameSeats(seats []string, passengers []models.Passenger) bool {
	if len(seats) != len(passengers) {
		return false
	}
	a := append([]string{}, seats...)
	b := make([]string, 0, len(passengers))
	for _, p := range passengers {
		b = append(b, p.Seat)
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Commit turns the caller's held locks into a Paid booking.
func (s BookingService) Commit(ctx context.Context, in CommitInput) (models.Booking, error) {
	start := time.Now()
	b, err := s.commitOnline(ctx, in)
	observeCommit(kindOnline, start, err)
	return b, err
}

func (s BookingService) commitOnline(ctx context.Context, in CommitInput) (models.Booking, error) {
	req, err := NormalizeCommit(in, true)
	if err != nil {
		return models.Booking{}, err
	}
	if in.Owner.IsZero() {
		return models.Booking{}, domain.ValidationError{Msg: "unable to identify lock owner"}
	}

	if err := s.checkNotBooked(ctx, req); err != nil {
		return models.Booking{}, err
	}

	var userID *int64
	if in.Owner.Authenticated() {
		id := in.Owner.UserID
		userID = &id
	}
	now := s.now()
	held, err := s.Locks.CountOwned(ctx, req.Trip, req.Seats, in.Owner.String(), userID, now)
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("check seat locks", err)
	}
	if held != len(req.Seats) {
		return models.Booking{}, domain.ConflictError{Resource: "seat", Msg: domain.MsgLockMissing, Seats: req.Seats}
	}

	bus, err := s.Buses.FindBus(ctx, req.Trip.BusID)
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("find bus", err)
	}
	quote, err := QuoteBooking(bus, req.BoardingPoint, req.DroppingPoint, len(req.Seats))
	if err != nil {
		return models.Booking{}, err
	}

	booking := newBooking(req, quote, now)
	booking.UserID = userID
	booking.PaymentStatus = models.PaymentPaid

	err = s.Tx.WithTx(ctx, func(tx CommitTx) error {
		if err := s.insertChecked(ctx, tx, &booking); err != nil {
			return err
		}
		n, err := tx.ConsumeLocks(ctx, req.Trip, req.Seats, in.Owner.String(), userID, now)
		if err != nil {
			return err
		}
		if n < int64(len(req.Seats)) {
			return domain.ConflictError{Resource: "seat", Msg: domain.MsgLockMissing, Seats: req.Seats}
		}
		return nil
	})
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("commit booking", err)
	}

	utils.LogEvent(s.RequestID, "booking", "commit", "booking created",
		"booking_no", booking.BookingNo, "trip", req.Trip.String(), "seats", strings.Join(req.Seats, ","))
	s.audit(ctx, models.AuditEntry{
		UserID: userID,
		Action: models.AuditBookingCreated,
		Details: map[string]any{
			"bookingId":     booking.ID,
			"bookingNo":     booking.BookingNo,
			"busId":         req.Trip.BusID,
			"date":          req.Trip.Date,
			"departureTime": req.Trip.DepartureTime,
			"seats":         req.Seats,
		},
		IP: in.IP,
	})
	return booking, nil
}

// CommitManual records an operator sale. It needs no lock but is still
// rejected when any seat is already sold.
func (s BookingService) CommitManual(ctx context.Context, in ManualInput) (models.Booking, error) {
	start := time.Now()
	b, err := s.commitManual(ctx, in)
	observeCommit(kindManual, start, err)
	return b, err
}

func (s BookingService) commitManual(ctx context.Context, in ManualInput) (models.Booking, error) {
	if in.StaffID <= 0 {
		return models.Booking{}, domain.AuthorizationError{Action: "create manual bookings"}
	}
	req, err := NormalizeCommit(in.CommitInput, false)
	if err != nil {
		return models.Booking{}, err
	}

	bus, err := s.Buses.FindBus(ctx, req.Trip.BusID)
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("find bus", err)
	}
	if in.StaffRole != models.RoleAdmin && bus.OperatorID != in.StaffID {
		return models.Booking{}, domain.AuthorizationError{Action: "book for this bus"}
	}

	if err := s.checkNotBooked(ctx, req); err != nil {
		return models.Booking{}, err
	}

	now := s.now()
	booking := newBooking(req, manualQuote(bus, len(req.Seats)), now)
	staffID := in.StaffID
	booking.BookedBy = &staffID
	booking.PaymentStatus = models.PaymentManual
	booking.IsManual = true

	err = s.Tx.WithTx(ctx, func(tx CommitTx) error {
		return s.insertChecked(ctx, tx, &booking)
	})
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("commit manual booking", err)
	}

	utils.LogEvent(s.RequestID, "booking", "commit_manual", "manual booking created",
		"booking_no", booking.BookingNo, "trip", req.Trip.String(), "staff_id", staffID)
	s.audit(ctx, models.AuditEntry{
		UserID: &staffID,
		Action: models.AuditManualBookingCreated,
		Details: map[string]any{
			"bookingId":     booking.ID,
			"bookingNo":     booking.BookingNo,
			"busId":         req.Trip.BusID,
			"date":          req.Trip.Date,
			"departureTime": req.Trip.DepartureTime,
			"seats":         req.Seats,
			"manual":        true,
		},
		IP: in.IP,
	})
	return booking, nil
}

// checkNotBooked is the fast-fail conflict check outside the transaction.
func (s BookingService) checkNotBooked(ctx context.Context, req CommitRequest) error {
	taken, err := s.Bookings.BlockingSeats(ctx, req.Trip, req.Seats, false)
	if err != nil {
		return intdb.ClassifyError("check booked seats", err)
	}
	if len(taken) > 0 {
		return domain.ConflictError{Resource: "seat", Msg: domain.MsgSeatsAlreadyBooked, Seats: taken}
	}
	return nil
}

// insertChecked allocates the booking number first so the per-day counter row
// lock orders concurrent commits before any seat range is locked. It then
// repeats the conflict check under row locks and writes.
func (s BookingService) insertChecked(ctx context.Context, tx CommitTx, b *models.Booking) error {
	no, err := tx.NextBookingNo(ctx, utils.BookingDay(b.CreatedAt))
	if err != nil {
		return err
	}
	taken, err := tx.BlockingSeatsForUpdate(ctx, b.Trip, b.Seats)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return domain.ConflictError{Resource: "seat", Msg: domain.MsgSeatsAlreadyBooked, Seats: taken}
	}
	b.BookingNo = no
	return tx.InsertBooking(ctx, b)
}

func newBooking(req CommitRequest, quote models.Quote, now time.Time) models.Booking {
	return models.Booking{
		Trip:          req.Trip,
		Seats:         req.Seats,
		Allocations:   req.Allocations,
		Passengers:    req.Passengers,
		Contact:       req.Contact,
		BoardingPoint: req.BoardingPoint,
		DroppingPoint: req.DroppingPoint,
		Price:         quote,
		CreatedAt:     now,
	}
}

func manualQuote(bus models.Bus, seatCount int) models.Quote {
	q, _ := QuoteBooking(models.Bus{Price: bus.Price, Fee: models.ConvenienceFee{AmountType: models.FeeFixed}}, "", "", seatCount)
	return q
}

// Cancel deletes the caller's own booking. Locks are untouched; the seats
// simply stop showing as booked.
func (s BookingService) Cancel(ctx context.Context, bookingID, userID int64, ip string) error {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return intdb.ClassifyError("get booking", err)
	}
	if !b.OwnedBy(userID) {
		return domain.AuthorizationError{Action: "cancel this booking"}
	}

	n, err := s.Bookings.Delete(ctx, bookingID)
	if err != nil {
		return intdb.ClassifyError("cancel booking", err)
	}
	if n == 0 {
		return domain.NotFoundError{Resource: "booking"}
	}

	utils.LogEvent(s.RequestID, "booking", "cancel", "booking cancelled", "booking_no", b.BookingNo)
	uid := userID
	s.audit(ctx, models.AuditEntry{
		UserID: &uid,
		Action: models.AuditBookingCancelled,
		Details: map[string]any{
			"bookingId": b.ID,
			"bookingNo": b.BookingNo,
			"busId":     b.Trip.BusID,
			"seats":     b.Seats,
		},
		IP: ip,
	})
	return nil
}

// ListMine returns the user's bookings, newest first.
func (s BookingService) ListMine(ctx context.Context, userID int64) ([]models.Booking, error) {
	if userID <= 0 {
		return nil, domain.AuthorizationError{Action: "list bookings"}
	}
	out, err := s.Bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, intdb.ClassifyError("list bookings", err)
	}
	return out, nil
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ListAll is the admin view over every booking, newest first.
func (s BookingService) ListAll(ctx context.Context, role string, f models.BookingFilter) ([]models.Booking, error) {
	if !strings.EqualFold(strings.TrimSpace(role), models.RoleAdmin) {
		return nil, domain.AuthorizationError{Action: "list all bookings"}
	}
	f.Date = strings.TrimSpace(f.Date)
	if f.Date != "" {
		if _, err := time.Parse("2006-01-02", f.Date); err != nil {
			return nil, domain.ValidationError{Field: "date", Msg: "must be YYYY-MM-DD", Err: err}
		}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	out, err := s.Bookings.List(ctx, f)
	if err != nil {
		return nil, intdb.ClassifyError("list all bookings", err)
	}
	return out, nil
}

// Get returns a booking visible to the caller: its owner, or an admin.
func (s BookingService) Get(ctx context.Context, bookingID, userID int64, role string) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, intdb.ClassifyError("get booking", err)
	}
	if role != models.RoleAdmin && !b.OwnedBy(userID) {
		return models.Booking{}, domain.AuthorizationError{Action: "view this booking"}
	}
	return b, nil
}

func (s BookingService) audit(ctx context.Context, e models.AuditEntry) {
	if s.Audit == nil {
		return
	}
	e.CreatedAt = s.now()
	if err := s.Audit.Record(ctx, s.RequestID, e); err != nil {
		utils.LogError(s.RequestID, "audit", e.Action, err)
	}
}

func observeCommit(kind string, start time.Time, err error) {
	result := metrics.ResultOK
	switch {
	case err == nil:
	case domain.IsConflict(err):
		result = metrics.ResultConflict
	case domain.IsValidation(err):
		result = metrics.ResultInvalid
	case domain.IsTransactionAbort(err):
		result = metrics.ResultAborted
	default:
		result = metrics.ResultError
	}
	metrics.BookingCommits.WithLabelValues(kind, result).Inc()
	metrics.BookingCommitDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
