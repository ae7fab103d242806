package auth

import (
	"net/http"

	"sessionauth/internal/http/apierror"
	"sessionauth/internal/http/middleware"
	authsvc "sessionauth/internal/services/auth"
)

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		invalidBody(w, r)
		return
	}

	res, err := h.svc.Register(r.Context(), authsvc.RegisterInput{
		Email:     in.Email,
		Password:  in.Password,
		Name:      in.Name,
		Birthday:  in.Birthday,
		OriginURL: in.OriginURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		invalidBody(w, r)
		return
	}

	res, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// RefreshTokens rotates the session named in the body using the bearer refresh token.
func (h *Handlers) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		apierror.Write(w, r, http.StatusBadRequest, apierror.CodeInvalidArgument, "refresh token is required")
		return
	}

	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		invalidBody(w, r)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), in.SessionID, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTokens(*pair))
}

func (h *Handlers) Signout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		h.writeError(w, r, authsvc.ErrUnauthorized)
		return
	}

	session, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.Signout(r.Context(), session.UserID, session.ID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GoogleConsent redirects the browser to the provider consent screen.
func (h *Handlers) GoogleConsent(w http.ResponseWriter, r *http.Request) {
	consentURL, err := h.svc.FederatedAuthURL()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

// GoogleRedirect completes federated sign-in and sends the browser back to the user's origin.
func (h *Handlers) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		apierror.Write(w, r, http.StatusBadRequest, apierror.CodeInvalidArgument, "authorization code is required")
		return
	}

	res, err := h.svc.FederatedSignIn(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func invalidBody(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, r, http.StatusBadRequest, apierror.CodeInvalidArgument, "invalid request body")
}
