package services

import (
	"testing"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"

	"github.com/shopspring/decimal"
)

const (
	testOperatorID = int64(7)
	testBoarding   = "Colombo"
	testDropping   = "Kandy"
)

var testTrip = domain.Trip{BusID: 1, Date: "2025-03-10", DepartureTime: "08:30"}

func testBus() models.Bus {
	return models.Bus{
		ID:         1,
		Name:       "Hill Express",
		OperatorID: testOperatorID,
		Price:      decimal.NewFromInt(1000),
		Fee:        models.ConvenienceFee{AmountType: models.FeePercentage, Value: decimal.NewFromInt(10)},
		SeatCount:  40,
		Fares: []models.Fare{
			{BoardingPoint: testBoarding, DroppingPoint: testDropping, Price: decimal.NewFromInt(1200)},
		},
	}
}

type fixture struct {
	store    *memStore
	clock    *fakeClock
	audit    *recordingAuditor
	locks    SeatLockService
	bookings BookingService
	avail    AvailabilityService
}

func newFixture(t *testing.T, buses ...models.Bus) *fixture {
	t.Helper()
	if len(buses) == 0 {
		buses = []models.Bus{testBus()}
	}
	store := newMemStore(buses...)
	clock := newFakeClock()
	audit := &recordingAuditor{}

	return &fixture{
		store: store,
		clock: clock,
		audit: audit,
		locks: NewSeatLockService(store, store, store, WithLockClock(clock.Now)),
		bookings: BookingService{
			Locks:    store,
			Bookings: store,
			Buses:    store,
			Tx:       store,
			Audit:    audit,
			Now:      clock.Now,
		},
		avail: AvailabilityService{
			Locks:    store,
			Bookings: store,
			Buses:    store,
			Now:      clock.Now,
		},
	}
}

func clientOwner(token string) domain.OwnerKey {
	return domain.OwnerKey{Kind: domain.OwnerClient, Value: token}
}

func userOwner(id int64) domain.OwnerKey {
	o, _ := ResolveOwner(OwnerInput{UserID: id})
	return o
}

func commitInput(owner domain.OwnerKey, seats ...string) CommitInput {
	return CommitInput{
		Trip:          testTrip,
		SelectedSeats: seats,
		Contact:       models.Contact{FullName: "Nimal Perera", Phone: "0771234567", NIC: "901234567V"},
		BoardingPoint: testBoarding,
		DroppingPoint: testDropping,
		Owner:         owner,
	}
}
