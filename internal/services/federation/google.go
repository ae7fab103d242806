// Package federation adapts an external OAuth2 identity provider to a code-for-email exchange.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"sessionauth/internal/config"
)

var (
	ErrEmptyCode       = errors.New("authorization code is empty")
	ErrNoEmail         = errors.New("provider returned no email")
	ErrEmailUnverified = errors.New("provider email is not verified")
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

type userInfo struct {
	Email         string `json:"email"`
	VerifiedEmail *bool  `json:"verified_email"`
}

// NewGoogle builds the Google adapter. The callback is baseURL joined with cfg.CallbackPath.
// A nil client means http.DefaultClient.
func NewGoogle(cfg config.GoogleConfig, baseURL string, client *http.Client) *Google {
	if client == nil {
		client = http.DefaultClient
	}

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimSuffix(baseURL, "/") + cfg.CallbackPath,
			Scopes:       googleScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		client:      client,
	}
}

// AuthCodeURL returns the consent page URL requesting offline access.
func (g *Google) AuthCodeURL() string {
	return g.oauth.AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades code for a token and reads the account email from the userinfo endpoint.
func (g *Google) Exchange(ctx context.Context, code string) (string, error) {
	const op = "federation.Google.Exchange"

	if code == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyCode)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%s: exchange: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: userinfo: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s: userinfo status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("%s: decode userinfo: %w", op, err)
	}

	if info.Email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoEmail)
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return "", fmt.Errorf("%s: %w", op, ErrEmailUnverified)
	}

	return info.Email, nil
}
