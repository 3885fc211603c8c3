package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"magiclink-auth/internal/middleware"
	"magiclink-auth/internal/model"
	"magiclink-auth/internal/service"
	"magiclink-auth/pkg/apierror"
)

type tokenLifecycle interface {
	Issue(ctx context.Context, user model.User) (string, time.Time, error)
	Verify(ctx context.Context, presented string) (model.User, error)
	Rotate(ctx context.Context, user model.User) (string, time.Time, error)
	RevokeAll(ctx context.Context, userID string) error
}

type admissionLimiter interface {
	Check(ctx context.Context, identity string) service.RateLimitDecision
}

type magicLinkMailer interface {
	SendMagicLink(ctx context.Context, email string, token string) error
}

type auditLogger interface {
	Log(ctx context.Context, entry model.AuditEntry)
}

type userDirectory interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, email string, name string, role string) (model.User, error)
}

// CookieSettings are the session-cookie attributes supplied by config.
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

type AuthHandler struct {
	tokens     tokenLifecycle
	users      userDirectory
	limiter    admissionLimiter
	mailer     magicLinkMailer
	audit      auditLogger
	cookie     CookieSettings
	production bool
}

func NewAuthHandler(tokens tokenLifecycle, users userDirectory, limiter admissionLimiter, mailer magicLinkMailer, audit auditLogger, cookie CookieSettings, production bool) *AuthHandler {
	return &AuthHandler{
		tokens:     tokens,
		users:      users,
		limiter:    limiter,
		mailer:     mailer,
		audit:      audit,
		cookie:     cookie,
		production: production,
	}
}

// MagicLink admits the request through the sliding-window limiter,
// finds or creates the user, issues a token and emails the link.
func (h *AuthHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	var payload model.MagicLinkRequest
	if !decodeAndValidate(w, r, &payload, h.production) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	identity := service.Identity(middleware.ExtractClientIP(r), email)

	decision := h.limiter.Check(r.Context(), identity)
	if !decision.Allowed {
		entry := auditEntry(r, model.EventRateLimitExceeded)
		entry.Metadata = map[string]any{"identity": identity, "attempts": decision.Attempts}
		h.audit.Log(r.Context(), entry)

		writeError(w, apierror.RateLimited(decision.ResetTime), h.production)
		return
	}

	user, err := h.users.FindByEmail(r.Context(), email)
	if errors.Is(err, model.ErrUserNotFound) {
		user, err = h.users.Create(r.Context(), email, "", model.RoleMember)
		if err == nil {
			entry := auditEntry(r, model.EventUserCreated)
			entry.TargetUserID = user.ID
			entry.ResourceType = "user"
			entry.ResourceID = user.ID
			h.audit.Log(r.Context(), entry)
		}
	}
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	token, _, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	if err := h.mailer.SendMagicLink(r.Context(), user.Email, token); err != nil {
		writeError(w, apierror.Internal(err), h.production)
		return
	}

	entry := auditEntry(r, model.EventMagicLinkRequested)
	entry.TargetUserID = user.ID
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, map[string]any{"message": "magic link sent"}, nil)
}

// Verify exchanges a magic-link token for a session: the token is
// verified, a fresh one is issued (rotation) and set as the session
// cookie. The response never distinguishes why verification failed.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyRequest
	if !decodeAndValidate(w, r, &payload, h.production) {
		return
	}

	user, err := h.tokens.Verify(r.Context(), payload.Token)
	if err != nil {
		// A storage outage is not a failed login attempt.
		if apierror.KindOf(err) == apierror.KindUnauthenticated {
			h.audit.Log(r.Context(), auditEntry(r, model.EventLoginFailure))
		}
		writeError(w, err, h.production)
		return
	}

	rotated, _, err := h.tokens.Rotate(r.Context(), user)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	h.setSessionCookie(w, rotated)

	entry := auditEntry(r, model.EventLoginSuccess)
	entry.ActingUserID = user.ID
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, model.SessionData{
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}, nil)
}

// Logout revokes every token for the user, then clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated(), h.production)
		return
	}

	if err := h.tokens.RevokeAll(r.Context(), user.ID); err != nil {
		writeError(w, err, h.production)
		return
	}

	h.clearSessionCookie(w)
	h.audit.Log(r.Context(), auditEntry(r, model.EventLogout))

	writeSuccess(w, http.StatusOK, map[string]any{"message": "logged out"}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated(), h.production)
		return
	}

	writeSuccess(w, http.StatusOK, model.SessionData{
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}, nil)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
