// Package auth is the HTTP boundary of the auth flows: JSON contracts,
// bearer token extraction and the mapping of flow errors to status codes.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sessionauth/internal/domain/models"
	authsvc "sessionauth/internal/services/auth"
)

type Service interface {
	Register(ctx context.Context, in authsvc.RegisterInput) (*authsvc.AuthResult, error)
	Login(ctx context.Context, email, password string) (*authsvc.AuthResult, error)
	Refresh(ctx context.Context, claimedSessionID, refreshToken string) (*models.TokenPair, error)
	Signout(ctx context.Context, userID, sessionID string) error
	Authenticate(ctx context.Context, accessToken string) (*models.Session, error)
	FederatedAuthURL() (string, error)
	FederatedSignIn(ctx context.Context, code string) (*authsvc.FederatedResult, error)
}

type Handlers struct {
	log *slog.Logger
	svc Service
}

func New(log *slog.Logger, svc Service) *Handlers {
	return &Handlers{log: log, svc: svc}
}

// Register mounts the auth routes on r. callbackPath is the provider redirect target.
func (h *Handlers) Register(r chi.Router, callbackPath string) {
	r.Post("/auth/register", h.RegisterUser)
	r.Post("/auth/login", h.LoginUser)
	r.Post("/auth/refresh", h.RefreshTokens)
	r.Post("/auth/signout", h.Signout)
	r.Get("/auth/google", h.GoogleConsent)
	r.Get(callbackPath, h.GoogleRedirect)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Birthday  string `json:"birthday"`
	OriginURL string `json:"originUrl"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	SessionID string `json:"sessionId"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
}

type userResponse struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
}

type authResponse struct {
	tokensResponse
	User userResponse `json:"user"`
}

func toTokens(p models.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		SessionID:    p.SessionID,
	}
}

func toAuthResponse(res *authsvc.AuthResult) authResponse {
	return authResponse{
		tokensResponse: toTokens(res.Tokens),
		User: userResponse{
			Name:     res.Profile.Name,
			Email:    res.Profile.Email,
			Birthday: res.Profile.Birthday,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

const maxBodyBytes = 1 << 20

// decodeStrict decodes the body into value, rejecting unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
