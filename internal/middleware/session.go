package middleware

import (
	"context"
	"net/http"
	"strings"

	"magiclink-auth/internal/model"
	"magiclink-auth/pkg/apierror"
)

type sessionVerifier interface {
	Verify(ctx context.Context, presented string) (model.User, error)
}

type contextKey string

const sessionUserContextKey contextKey = "session_user"

// SessionMiddleware authenticates requests from the session cookie set
// at verification time.
type SessionMiddleware struct {
	verifier   sessionVerifier
	cookieName string
}

func NewSessionMiddleware(verifier sessionVerifier, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{verifier: verifier, cookieName: cookieName}
}

func (m *SessionMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeAuthError(w, apierror.KindUnauthenticated, "authentication required")
			return
		}

		user, err := m.verifier.Verify(r.Context(), cookie.Value)
		if err != nil {
			writeAuthError(w, apierror.KindUnauthenticated, "not authenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (m *SessionMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, apierror.KindUnauthenticated, "authentication required")
				return
			}

			if _, exists := roleSet[strings.ToLower(user.Role)]; !exists {
				writeAuthError(w, apierror.KindForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, sessionUserContextKey, user)
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(sessionUserContextKey).(model.User)
	return user, ok
}

func writeAuthError(w http.ResponseWriter, kind apierror.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	if kind == apierror.KindForbidden {
		w.WriteHeader(http.StatusForbidden)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}

	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    kind,
			Message: message,
		},
	})
}
