package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionauth/internal/http/apierror"
	authsvc "sessionauth/internal/services/auth"
)

func TestWriteError(t *testing.T) {
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", authsvc.ErrUserExists, http.StatusConflict, apierror.CodeAlreadyExists},
		{"bad credentials", authsvc.ErrInvalidCredentials, http.StatusUnauthorized, apierror.CodeUnauthenticated},
		{"unauthorized", authsvc.ErrUnauthorized, http.StatusUnauthorized, apierror.CodeUnauthenticated},
		{"unknown session", authsvc.ErrInvalidSession, http.StatusNotFound, apierror.CodeNotFound},
		{"unknown user", authsvc.ErrInvalidUser, http.StatusNotFound, apierror.CodeNotFound},
		{"no local account", authsvc.ErrNoLocalAccount, http.StatusForbidden, apierror.CodePermissionDenied},
		{"federation disabled", authsvc.ErrFederationDisabled, http.StatusNotFound, apierror.CodeNotFound},
		{"invalid email", authsvc.ErrInvalidEmail, http.StatusBadRequest, apierror.CodeInvalidArgument},
		{"bad origin", authsvc.ErrInvalidOriginURL, http.StatusBadRequest, apierror.CodeInvalidArgument},
		{"long password", authsvc.ErrPasswordTooLong, http.StatusBadRequest, apierror.CodeInvalidArgument},
		{"infra", errors.New("disk I/O error"), http.StatusInternalServerError, apierror.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			rr := httptest.NewRecorder()

			h.writeError(rr, req, fmt.Errorf("auth.Flow: %w", tt.err))

			require.Equal(t, tt.status, rr.Code)

			var env apierror.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotContains(t, env.Error.Message, "auth.Flow")
			assert.NotContains(t, env.Error.Message, "disk")
		})
	}
}
