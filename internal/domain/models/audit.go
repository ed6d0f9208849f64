package models

import "time"

// Audit event types.
const (
	AuditBookingCreated       = "BOOKING_CREATED"
	AuditBookingCancelled     = "BOOKING_CANCELLED"
	AuditManualBookingCreated = "MANUAL_BOOKING_CREATED"
	AuditLogin                = "LOGIN"
)

type AuditEntry struct {
	ID        int64          `json:"id"`
	UserID    *int64         `json:"userId,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	IP        string         `json:"ip,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
