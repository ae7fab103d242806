// Package apierror writes the JSON error envelope shared by every HTTP endpoint:
//
//	{"error":{"code":"unauthenticated","message":"unauthorized","request_id":"..."}}
//
// Code is a short stable machine-readable value, Message is safe to show to
// users, RequestID echoes the X-Request-Id header when there is one.
package apierror

import (
	"encoding/json"
	"net/http"
)

const RequestIDHeader = "X-Request-Id"

// Stable error codes.
const (
	CodeInvalidArgument  = "invalid_argument"
	CodeNotFound         = "not_found"
	CodeAlreadyExists    = "already_exists"
	CodeUnauthenticated  = "unauthenticated"
	CodePermissionDenied = "permission_denied"
	CodeInternal         = "internal"
)

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Write sends status with an error envelope.
func Write(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := ErrorResponse{
		Error: APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(RequestIDHeader),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Internal sends 500 without any detail of the underlying failure.
func Internal(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
}
