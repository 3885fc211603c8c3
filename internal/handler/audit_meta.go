package handler

import (
	"net/http"

	"magiclink-auth/internal/middleware"
	"magiclink-auth/internal/model"
)

// auditEntry pre-fills request context: client address, user agent and
// the acting user when a session is present.
func auditEntry(r *http.Request, eventType model.AuditEventType) model.AuditEntry {
	entry := model.AuditEntry{
		EventType: eventType,
		IPAddress: middleware.ExtractClientIP(r),
		UserAgent: r.UserAgent(),
	}

	if user, ok := middleware.UserFromContext(r.Context()); ok {
		entry.ActingUserID = user.ID
	}

	return entry
}
