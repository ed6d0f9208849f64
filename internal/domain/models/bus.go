package models

import "github.com/shopspring/decimal"

const (
	FeeFixed      = "fixed"
	FeePercentage = "percentage"
)

// Bus is the read-only slice of the bus record the booking core needs.
type Bus struct {
	ID         int64
	Name       string
	OperatorID int64
	Price      decimal.Decimal
	Fee        ConvenienceFee
	SeatCount  int
	Fares      []Fare
}

// ConvenienceFee is either a flat amount per seat or a percentage of the base.
type ConvenienceFee struct {
	AmountType string
	Value      decimal.Decimal
}

// Fare overrides the base price for one boarding/dropping pair.
type Fare struct {
	BoardingPoint string
	DroppingPoint string
	Price         decimal.Decimal
}

// FareFor returns the route-specific override, if any.
func (b Bus) FareFor(boarding, dropping string) (decimal.Decimal, bool) {
	for _, f := range b.Fares {
		if f.BoardingPoint == boarding && f.DroppingPoint == dropping {
			return f.Price, true
		}
	}
	return decimal.Zero, false
}
