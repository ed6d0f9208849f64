package services

import (
	"context"

	"busreserve/internal/domain/models"
	"busreserve/internal/utils"
)

// AuditService mirrors audit events to the structured log and persists them.
type AuditService struct {
	Repo AuditWriter
}

// Record never blocks a successful operation: callers log its error and move on.
func (s AuditService) Record(ctx context.Context, requestID string, e models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.NowUTC()
	}
	attrs := []any{"audit_action", e.Action}
	if e.UserID != nil {
		attrs = append(attrs, "user_id", *e.UserID)
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	utils.LogEvent(requestID, "audit", e.Action, "audit event", attrs...)

	if s.Repo == nil {
		return nil
	}
	return s.Repo.Insert(ctx, e)
}
