package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
)

// BusRepository is a read-only view over buses and bus_fares.
type BusRepository struct {
	DB intdb.Querier
}

func (r BusRepository) FindBus(ctx context.Context, id int64) (models.Bus, error) {
	if id <= 0 {
		return models.Bus{}, domain.NotFoundError{Resource: "bus"}
	}

	var b models.Bus
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, operator_id, price, fee_type, fee_value, seat_count
		FROM buses
		WHERE id=? LIMIT 1
	`, id).Scan(&b.ID, &b.Name, &b.OperatorID, &b.Price, &b.Fee.AmountType, &b.Fee.Value, &b.SeatCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bus{}, domain.NotFoundError{Resource: "bus", Err: err}
	}
	if err != nil {
		return models.Bus{}, fmt.Errorf("find bus: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT boarding_point, dropping_point, price
		FROM bus_fares
		WHERE bus_id=?
	`, id)
	if err != nil {
		return models.Bus{}, fmt.Errorf("find bus fares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.Fare
		if err := rows.Scan(&f.BoardingPoint, &f.DroppingPoint, &f.Price); err != nil {
			return models.Bus{}, err
		}
		b.Fares = append(b.Fares, f)
	}
	return b, rows.Err()
}
