package model

import "time"

type AuditEventType string

const (
	// Auth events
	EventLoginSuccess       AuditEventType = "auth:login:success"
	EventLoginFailure       AuditEventType = "auth:login:failure"
	EventLogout             AuditEventType = "auth:logout"
	EventMagicLinkRequested AuditEventType = "auth:magic_link:requested"

	// User management events
	EventUserCreated AuditEventType = "user:created"
	EventUserUpdated AuditEventType = "user:updated"
	EventUserDeleted AuditEventType = "user:deleted"
	EventRoleChanged AuditEventType = "user:role:changed"

	// Admin actions
	EventAdminAction AuditEventType = "admin:action"

	// Security events
	EventRateLimitExceeded  AuditEventType = "security:rate_limit:exceeded"
	EventUnauthorizedAccess AuditEventType = "security:unauthorized_access"
	EventForbiddenAccess    AuditEventType = "security:forbidden_access"
)

// AuditEntry is immutable once enqueued. Delivery to the sink is
// at-least-once, so duplicate writes are acceptable.
type AuditEntry struct {
	EventType    AuditEventType `json:"event_type"`
	ActingUserID string         `json:"acting_user_id,omitempty"`
	TargetUserID string         `json:"target_user_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
