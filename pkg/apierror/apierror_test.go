package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthenticated:  http.StatusUnauthorized,
		KindForbidden:        http.StatusForbidden,
		KindRateLimited:      http.StatusTooManyRequests,
		KindValidationFailed: http.StatusBadRequest,
		KindNotFound:         http.StatusNotFound,
		KindConflict:         http.StatusConflict,
		KindInternal:         http.StatusInternalServerError,
	}

	for kind, want := range cases {
		err := New(kind, "message", "")
		assert.Equal(t, want, err.HTTPStatus(), "kind %s", kind)
	}
}

func TestUnauthenticatedIsOpaque(t *testing.T) {
	// The message must not leak why authentication failed.
	err := Unauthenticated()
	assert.Equal(t, KindUnauthenticated, err.Kind)
	assert.Equal(t, "not authenticated", err.Message)
	assert.Empty(t, err.Details)
}

func TestRateLimitedCarriesResetTime(t *testing.T) {
	reset := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := RateLimited(reset)

	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, reset, err.ResetTime)
	assert.Equal(t, "2026-03-01T12:00:00Z", err.Details)
}

func TestInternalWrapsCause(t *testing.T) {
	cause := fmt.Errorf("pg: connection refused")
	err := Internal(cause)

	assert.Equal(t, KindInternal, err.Kind)
	assert.ErrorIs(t, err, cause)
	// Message stays generic regardless of the cause.
	assert.Equal(t, "unexpected server error", err.Message)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(Forbidden("")))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrapped: %w", Forbidden(""))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}
