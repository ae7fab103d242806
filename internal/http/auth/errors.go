package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"sessionauth/internal/http/apierror"
	"sessionauth/internal/lib/logctx"
	"sessionauth/internal/lib/sl"
	authsvc "sessionauth/internal/services/auth"
)

type statusMapping struct {
	target error
	status int
	code   string
}

// errorTable maps flow errors to responses. Anything else is an infrastructure failure.
var errorTable = []statusMapping{
	{authsvc.ErrUserExists, http.StatusConflict, apierror.CodeAlreadyExists},
	{authsvc.ErrInvalidCredentials, http.StatusUnauthorized, apierror.CodeUnauthenticated},
	{authsvc.ErrUnauthorized, http.StatusUnauthorized, apierror.CodeUnauthenticated},
	{authsvc.ErrInvalidSession, http.StatusNotFound, apierror.CodeNotFound},
	{authsvc.ErrInvalidUser, http.StatusNotFound, apierror.CodeNotFound},
	{authsvc.ErrNoLocalAccount, http.StatusForbidden, apierror.CodePermissionDenied},
	{authsvc.ErrFederationDisabled, http.StatusNotFound, apierror.CodeNotFound},
	{authsvc.ErrInvalidEmail, http.StatusBadRequest, apierror.CodeInvalidArgument},
	{authsvc.ErrEmptyPassword, http.StatusBadRequest, apierror.CodeInvalidArgument},
	{authsvc.ErrPasswordTooLong, http.StatusBadRequest, apierror.CodeInvalidArgument},
	{authsvc.ErrInvalidBirthday, http.StatusBadRequest, apierror.CodeInvalidArgument},
	{authsvc.ErrInvalidOriginURL, http.StatusBadRequest, apierror.CodeInvalidArgument},
}

// writeError writes the response for err. Known flow errors carry their own
// message, infrastructure failures are logged and answered with 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			apierror.Write(w, r, m.status, m.code, m.target.Error())
			return
		}
	}

	logctx.From(r.Context(), h.log).Error("request failed",
		slog.String("path", r.URL.Path),
		sl.Err(err),
	)
	apierror.Internal(w, r)
}
