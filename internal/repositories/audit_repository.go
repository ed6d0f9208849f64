package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain/models"
)

type AuditRepository struct {
	DB intdb.Querier
}

func (r AuditRepository) Insert(ctx context.Context, e models.AuditEntry) error {
	var details any
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(raw)
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action, details, ip, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, intdb.NullInt64(e.UserID), e.Action, details, intdb.NullIfEmpty(e.IP), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
