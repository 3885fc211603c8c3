package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"magiclink-auth/internal/model"
	"magiclink-auth/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// writeError maps an error chain to the response envelope. The decision
// of what to log and what to sanitize is a switch over the error kind,
// never over message text.
func writeError(w http.ResponseWriter, err error, production bool) {
	apiErr := classify(err)

	body := &model.APIError{
		Code:    apiErr.Kind,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}

	switch apiErr.Kind {
	case apierror.KindUnauthenticated, apierror.KindForbidden,
		apierror.KindNotFound, apierror.KindConflict:
		// Expected traffic; the request log line is enough.
	case apierror.KindRateLimited:
		if !apiErr.ResetTime.IsZero() {
			body.ResetTime = apiErr.ResetTime.Format(time.RFC3339)
		}
		body.Details = ""
	case apierror.KindValidationFailed:
		if production {
			body.Message = "invalid request"
			body.Details = ""
		}
	default:
		if production {
			slog.Error("internal error", "error", err)
			body.Message = "unexpected server error"
			body.Details = ""
		} else {
			slog.Error("internal error", "error", err)
			if cause := errors.Unwrap(apiErr); cause != nil {
				body.Details = cause.Error()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func classify(err error) *apierror.APIError {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, model.ErrUserNotFound):
		return apierror.New(apierror.KindNotFound, "user not found", "")
	case errors.Is(err, model.ErrUserAlreadyExists):
		return apierror.New(apierror.KindConflict, "user already exists", "")
	case errors.Is(err, model.ErrTokenNotFound), errors.Is(err, model.ErrTokenExpired):
		return apierror.Unauthenticated()
	case errors.Is(err, model.ErrInvalidInput):
		return apierror.Validation("invalid input", "")
	default:
		return apierror.Internal(err)
	}
}
