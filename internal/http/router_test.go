package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "sessionauth/internal/http"
	"sessionauth/internal/http/apierror"
	"sessionauth/internal/lib/jwt"
	"sessionauth/internal/metrics"
	"sessionauth/internal/migrator"
	"sessionauth/internal/services/auth"
	"sessionauth/internal/services/auth/mocks"
	"sessionauth/internal/storage/sqlite"
)

type server struct {
	t       *testing.T
	srv     *httptest.Server
	client  *http.Client
	store   *sqlite.Storage
	metrics *metrics.Metrics
}

func newServer(t *testing.T, opts ...auth.Option) *server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth.db")
	require.NoError(t, migrator.Run("sqlite", migrator.SQLiteURL(path), migrator.Up))

	st, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	issuer := jwt.New(jwt.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "sessionauth-test",
	})

	opts = append([]auth.Option{auth.WithBcryptCost(4), auth.WithFlowRecorder(m)}, opts...)
	svc := auth.New(log, st, st, issuer, opts...)

	srv := httptest.NewServer(httpapi.NewRouter(svc, httpapi.Options{
		Logger:  log,
		Timeout: 5 * time.Second,
		Metrics: m,
	}))
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &server{t: t, srv: srv, client: client, store: st, metrics: m}
}

func (s *server) do(method, path, bearer string, body any) *http.Response {
	s.t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
}

type authBody struct {
	tokens
	User struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Birthday string `json:"birthday"`
	} `json:"user"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireError(t *testing.T, resp *http.Response, status int, code string) apierror.APIError {
	t.Helper()

	require.Equal(t, status, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	env := decode[apierror.ErrorResponse](t, resp)
	require.Equal(t, code, env.Error.Code)
	require.Len(t, env.Error.RequestID, 32)
	require.Equal(t, resp.Header.Get(apierror.RequestIDHeader), env.Error.RequestID)

	return env.Error
}

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name,omitempty"`
	Birthday  string `json:"birthday,omitempty"`
	OriginURL string `json:"originUrl,omitempty"`
}

func newCredentials() credentials {
	return credentials{
		Email:     strings.ToLower(gofakeit.Email()),
		Password:  gofakeit.Password(true, true, true, true, false, 12),
		Name:      gofakeit.Name(),
		Birthday:  "1990-04-12",
		OriginURL: "https://app.example.com/welcome?ref=mail",
	}
}

func (s *server) register(c credentials) authBody {
	s.t.Helper()

	resp := s.do(http.MethodPost, "/auth/register", "", c)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)

	return decode[authBody](s.t, resp)
}

func TestRegisterLoginScenario(t *testing.T) {
	s := newServer(t)
	c := newCredentials()

	reg := s.register(c)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)
	assert.NotEmpty(t, reg.SessionID)
	assert.Equal(t, c.Name, reg.User.Name)
	assert.Equal(t, c.Email, reg.User.Email)
	assert.Equal(t, c.Birthday, reg.User.Birthday)

	resp := s.do(http.MethodPost, "/auth/register", "", c)
	requireError(t, resp, http.StatusConflict, apierror.CodeAlreadyExists)

	resp = s.do(http.MethodPost, "/auth/login", "", credentials{Email: c.Email, Password: "wrong-" + c.Password})
	requireError(t, resp, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	resp = s.do(http.MethodPost, "/auth/login", "", credentials{Email: c.Email, Password: c.Password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[authBody](t, resp)
	assert.NotEqual(t, reg.SessionID, login.SessionID)
	assert.Equal(t, c.Email, login.User.Email)
}

func TestRegister_BadRequest(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "invalid email", body: credentials{Email: "not-an-email", Password: "pw"}},
		{name: "empty password", body: credentials{Email: "a@x.com"}},
		{name: "bad birthday", body: credentials{Email: "a@x.com", Password: "pw", Birthday: "12/04/1990"}},
		{name: "script origin", body: credentials{Email: "a@x.com", Password: "pw", OriginURL: "javascript:alert(1)"}},
		{name: "unknown field", body: map[string]string{"email": "a@x.com", "password": "pw", "role": "admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, "/auth/register", "", tt.body)
			requireError(t, resp, http.StatusBadRequest, apierror.CodeInvalidArgument)
		})
	}
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	reg := s.register(newCredentials())

	t.Run("missing token", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"sessionId": reg.SessionID})
		requireError(t, resp, http.StatusBadRequest, apierror.CodeInvalidArgument)
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/refresh", reg.RefreshToken, map[string]string{"sessionId": "missing"})
		requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)
	})

	resp := s.do(http.MethodPost, "/auth/refresh", reg.RefreshToken, map[string]string{"sessionId": reg.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[tokens](t, resp)
	assert.NotEqual(t, reg.SessionID, rotated.SessionID)
	assert.NotEqual(t, reg.RefreshToken, rotated.RefreshToken)

	t.Run("replay", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/refresh", reg.RefreshToken, map[string]string{"sessionId": reg.SessionID})
		requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)
	})

	t.Run("access token burns the session", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/refresh", rotated.AccessToken, map[string]string{"sessionId": rotated.SessionID})
		requireError(t, resp, http.StatusUnauthorized, apierror.CodeUnauthenticated)

		resp = s.do(http.MethodPost, "/auth/refresh", rotated.RefreshToken, map[string]string{"sessionId": rotated.SessionID})
		requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)
	})
}

func TestRefresh_ConcurrentRotationSucceedsOnce(t *testing.T) {
	s := newServer(t)
	reg := s.register(newCredentials())

	const attempts = 6

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			raw, _ := json.Marshal(map[string]string{"sessionId": reg.SessionID})
			req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/auth/refresh", bytes.NewReader(raw))
			if err != nil {
				return
			}
			req.Header.Set("Authorization", "Bearer "+reg.RefreshToken)

			resp, err := s.client.Do(req)
			if err != nil {
				return
			}
			_ = resp.Body.Close()

			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, attempts-1, codes[http.StatusNotFound])
}

func TestSignout(t *testing.T) {
	s := newServer(t)
	reg := s.register(newCredentials())

	resp := s.do(http.MethodPost, "/auth/signout", "", nil)
	requireError(t, resp, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	resp = s.do(http.MethodPost, "/auth/signout", reg.RefreshToken, nil)
	requireError(t, resp, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	resp = s.do(http.MethodPost, "/auth/signout", reg.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodPost, "/auth/signout", reg.AccessToken, nil)
	requireError(t, resp, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	resp = s.do(http.MethodPost, "/auth/refresh", reg.RefreshToken, map[string]string{"sessionId": reg.SessionID})
	requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)
}

func TestGoogle_Disabled(t *testing.T) {
	s := newServer(t)

	resp := s.do(http.MethodGet, "/auth/google", "", nil)
	requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)
}

func TestGoogle(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	s := newServer(t, auth.WithIdentityProvider(provider))

	registered := newCredentials()
	s.register(registered)

	noOrigin := newCredentials()
	noOrigin.OriginURL = ""
	s.register(noOrigin)

	provider.EXPECT().AuthCodeURL().Return("https://accounts.example.com/o/oauth2/auth?client_id=x")
	provider.EXPECT().Exchange(gomock.Any(), "good").Return(registered.Email, nil)
	provider.EXPECT().Exchange(gomock.Any(), "stranger").Return("stranger@example.com", nil)
	provider.EXPECT().Exchange(gomock.Any(), "no-origin").Return(noOrigin.Email, nil)
	provider.EXPECT().Exchange(gomock.Any(), "broken").Return("", errors.New("token endpoint unavailable"))

	t.Run("consent redirect", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/google", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://accounts.example.com/o/oauth2/auth?client_id=x", resp.Header.Get("Location"))
	})

	t.Run("missing code", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/google-redirect", "", nil)
		requireError(t, resp, http.StatusBadRequest, apierror.CodeInvalidArgument)
	})

	t.Run("registered user", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/google-redirect?code=good", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "app.example.com", loc.Host)
		assert.Equal(t, "/welcome", loc.Path)

		q := loc.Query()
		assert.Equal(t, "mail", q.Get("ref"))
		assert.NotEmpty(t, q.Get("accessToken"))
		assert.NotEmpty(t, q.Get("refreshToken"))

		sess, err := s.store.Session(context.Background(), q.Get("sessionId"))
		require.NoError(t, err)
		assert.NotEmpty(t, sess.UserID)
	})

	for _, code := range []string{"stranger", "no-origin"} {
		t.Run("forbidden "+code, func(t *testing.T) {
			resp := s.do(http.MethodGet, "/auth/google-redirect?code="+code, "", nil)
			apiErr := requireError(t, resp, http.StatusForbidden, apierror.CodePermissionDenied)
			assert.Equal(t, auth.ErrNoLocalAccount.Error(), apiErr.Message)
		})
	}

	t.Run("provider failure", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/google-redirect?code=broken", "", nil)
		apiErr := requireError(t, resp, http.StatusInternalServerError, apierror.CodeInternal)
		assert.NotContains(t, apiErr.Message, "token endpoint")
	})
}

func TestProbesAndMetrics(t *testing.T) {
	s := newServer(t)
	s.register(newCredentials())

	resp := s.do(http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(apierror.RequestIDHeader), 32)

	resp = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/nope", "", nil)
	requireError(t, resp, http.StatusNotFound, apierror.CodeNotFound)

	resp = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sessionauth_auth_flows_total{flow="register",outcome="ok"} 1`)
	assert.Contains(t, string(body), `route="/auth/register"`)
}

func TestHealthz_NotReady(t *testing.T) {
	srv := httptest.NewServer(httpapi.NewRouter(nil, httpapi.Options{
		Ready: func(context.Context) error { return errors.New("database is down") },
	}))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
