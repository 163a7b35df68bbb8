package domain

import "time"

type AuditAction string

const (
	AuditActionCreate        AuditAction = "CREATE"
	AuditActionJoinSession   AuditAction = "JOIN_SESSION"
	AuditActionCancel        AuditAction = "CANCEL"
	AuditActionExpireSession AuditAction = "EXPIRE_SESSION"
	AuditActionComplete      AuditAction = "COMPLETE"
)

const (
	ResourceHalfOrderSession = "half_order_session"
	ResourcePairedOrder      = "paired_order"
)

type AuditRecord struct {
	ID           string
	ActorID      string
	ActorName    string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	SourceIP     string
	CreatedAt    time.Time
}
