package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionauth/internal/config"
)

type fakeProvider struct {
	*httptest.Server
	userInfo map[string]any
	status   int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		userInfo: map[string]any{"email": "alice@example.com", "verified_email": true},
		status:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "http://auth.local/auth/google-redirect", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.status)
		_ = json.NewEncoder(w).Encode(p.userInfo)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	return p
}

func (p *fakeProvider) google() *Google {
	return NewGoogle(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackPath: "/auth/google-redirect",
		AuthURL:      p.URL + "/auth",
		TokenURL:     p.URL + "/token",
		UserInfoURL:  p.URL + "/userinfo",
	}, "http://auth.local/", p.Client())
}

func TestAuthCodeURL(t *testing.T) {
	p := newFakeProvider(t)

	u, err := url.Parse(p.google().AuthCodeURL())
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://auth.local/auth/google-redirect", q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t,
		"https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/userinfo.profile",
		q.Get("scope"))
}

func TestExchange(t *testing.T) {
	p := newFakeProvider(t)

	email, err := p.google().Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestExchange_Errors(t *testing.T) {
	t.Run("empty code", func(t *testing.T) {
		p := newFakeProvider(t)
		_, err := p.google().Exchange(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyCode)
	})

	t.Run("rejected code", func(t *testing.T) {
		p := newFakeProvider(t)
		_, err := p.google().Exchange(context.Background(), "bad-code")
		assert.Error(t, err)
	})

	t.Run("no email", func(t *testing.T) {
		p := newFakeProvider(t)
		p.userInfo = map[string]any{"name": "Alice"}
		_, err := p.google().Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrNoEmail)
	})

	t.Run("unverified", func(t *testing.T) {
		p := newFakeProvider(t)
		p.userInfo = map[string]any{"email": "alice@example.com", "verified_email": false}
		_, err := p.google().Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrEmailUnverified)
	})

	t.Run("userinfo failure", func(t *testing.T) {
		p := newFakeProvider(t)
		p.status = http.StatusInternalServerError
		_, err := p.google().Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})
}
