package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sessionauth/internal/domain/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Kind selects the secret a token is signed and verified with.
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session-bound token pairs.
type Issuer struct {
	cfg Config
	now func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func New(cfg Config, opts ...Option) *Issuer {
	i := &Issuer{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Issue creates an access and a refresh token carrying userID and sessionID.
func (i *Issuer) Issue(userID, sessionID string) (models.TokenPair, error) {
	const op = "jwt.Issue"

	access, err := i.sign(userID, sessionID, Access)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := i.sign(userID, sessionID, Refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
	}, nil
}

// Verify checks the signature, algorithm, issuer and expiry of a token of the given kind.
// Expired tokens yield ErrTokenExpired, any other failure ErrInvalidToken.
func (i *Issuer) Verify(token string, kind Kind) (*models.TokenPayload, error) {
	const op = "jwt.Verify"

	secret, _ := i.params(kind)

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}

	if c.UserID == "" || c.SessionID == "" {
		return nil, fmt.Errorf("%s: %w: missing uid or sid", op, ErrInvalidToken)
	}

	return &models.TokenPayload{
		UserID:    c.UserID,
		SessionID: c.SessionID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

func (i *Issuer) sign(userID, sessionID string, kind Kind) (string, error) {
	secret, ttl := i.params(kind)
	now := i.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString([]byte(secret))
}

func (i *Issuer) params(kind Kind) (string, time.Duration) {
	if kind == Refresh {
		return i.cfg.RefreshSecret, i.cfg.RefreshTTL
	}
	return i.cfg.AccessSecret, i.cfg.AccessTTL
}
