package services

import (
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// QuoteBooking prices seatCount seats from the bus record alone. A fare for
// the exact boarding/dropping pair overrides the base price; the convenience
// fee is a flat amount per seat or a percentage of the base amount.
func QuoteBooking(bus models.Bus, boarding, dropping string, seatCount int) (models.Quote, error) {
	if seatCount <= 0 {
		return models.Quote{}, domain.ValidationError{Field: "seats", Msg: "must not be empty"}
	}

	perSeat, ok := bus.FareFor(boarding, dropping)
	if !ok {
		perSeat = bus.Price
	}
	if perSeat.IsNegative() {
		return models.Quote{}, domain.InternalError{Msg: "bus has a negative price"}
	}

	count := decimal.NewFromInt(int64(seatCount))
	base := perSeat.Mul(count)

	var fee decimal.Decimal
	switch bus.Fee.AmountType {
	case models.FeePercentage:
		fee = base.Mul(bus.Fee.Value).Div(hundred)
	case models.FeeFixed, "":
		fee = bus.Fee.Value.Mul(count)
	default:
		return models.Quote{}, domain.InternalError{Msg: "unknown convenience fee type " + bus.Fee.AmountType}
	}
	fee = fee.Round(2)

	return models.Quote{
		PricePerSeat:   perSeat,
		SeatCount:      seatCount,
		BaseAmount:     base,
		ConvenienceFee: fee,
		TotalAmount:    base.Add(fee),
	}, nil
}
