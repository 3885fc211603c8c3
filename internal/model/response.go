package model

import "magiclink-auth/pkg/apierror"

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    apierror.Kind `json:"code"`
	Message string        `json:"message"`
	Details string        `json:"details,omitempty"`

	// ResetTime accompanies RATE_LIMITED responses (RFC3339, window end).
	ResetTime string `json:"reset_time,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type SessionData struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}
