package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"magiclink-auth/internal/model"
	"magiclink-auth/pkg/apierror"
)

type stubVerifier struct {
	user model.User
	err  error
}

func (s *stubVerifier) Verify(context.Context, string) (model.User, error) {
	if s.err != nil {
		return model.User{}, s.err
	}
	return s.user, nil
}

func echoUserHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("user missing from authenticated request context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(user.ID))
	})
}

func TestRequireAuth_MissingCookie(t *testing.T) {
	mw := NewSessionMiddleware(&stubVerifier{}, "auth_session")
	handler := mw.RequireAuth(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_EmptyCookieValue(t *testing.T) {
	mw := NewSessionMiddleware(&stubVerifier{}, "auth_session")
	handler := mw.RequireAuth(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "  "})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := NewSessionMiddleware(&stubVerifier{err: apierror.Unauthenticated()}, "auth_session")
	handler := mw.RequireAuth(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "forged"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ValidTokenAttachesUser(t *testing.T) {
	user := model.User{ID: "user-1", Email: "alice@example.com", Role: model.RoleMember}
	mw := NewSessionMiddleware(&stubVerifier{user: user}, "auth_session")
	handler := mw.RequireAuth(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "valid"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRequireRoles(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := NewSessionMiddleware(&stubVerifier{}, "auth_session")
	handler := mw.RequireRoles("admin")(next)

	t.Run("no session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req = req.WithContext(ContextWithUser(req.Context(), model.User{ID: "u", Role: model.RoleMember}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allowed role, case insensitive", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req = req.WithContext(ContextWithUser(req.Context(), model.User{ID: "u", Role: "Admin"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
