package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/lib/jwt"
	"sessionauth/internal/lib/sl"
	"sessionauth/internal/storage"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks sessionauth/internal/services/auth AvatarResolver,IdentityProvider,SessionStorage,UserStorage

type Auth struct {
	logger     *slog.Logger
	users      UserStorage
	sessions   SessionStorage
	tokens     TokenIssuer
	provider   IdentityProvider
	avatars    AvatarResolver
	recorder   FlowRecorder
	bcryptCost int
}

type UserStorage interface {
	SaveUser(ctx context.Context, user *models.User) (userID string, err error)
	User(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateUserTokens(ctx context.Context, userID string, tokens models.UserTokens) error
}

// SessionStorage is the session lifecycle contract. TakeSession must delete and
// return the session atomically: of concurrent callers exactly one succeeds.
type SessionStorage interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	Session(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	TakeSession(ctx context.Context, sessionID string) (*models.Session, error)
}

type TokenIssuer interface {
	Issue(userID, sessionID string) (models.TokenPair, error)
	Verify(token string, kind jwt.Kind) (*models.TokenPayload, error)
}

// IdentityProvider exchanges an authorization code for a verified email.
type IdentityProvider interface {
	AuthCodeURL() string
	Exchange(ctx context.Context, code string) (email string, err error)
}

type AvatarResolver interface {
	DefaultAvatarURL(ctx context.Context) (string, error)
}

type FlowRecorder interface {
	Flow(flow, outcome string)
}

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidUser        = errors.New("invalid user")
	ErrNoLocalAccount     = errors.New("federated sign-in requires an account registered with email and password first")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrEmptyPassword      = errors.New("password is required")
	ErrPasswordTooLong    = errors.New("password is longer than 72 bytes")
	ErrInvalidBirthday    = errors.New("birthday must be formatted as YYYY-MM-DD")
	ErrInvalidOriginURL   = errors.New("origin url must be an absolute http or https url")
	ErrFederationDisabled = errors.New("federated sign-in is not configured")
)

type Option func(*Auth)

func WithIdentityProvider(p IdentityProvider) Option {
	return func(a *Auth) { a.provider = p }
}

func WithAvatars(r AvatarResolver) Option {
	return func(a *Auth) { a.avatars = r }
}

func WithFlowRecorder(r FlowRecorder) Option {
	return func(a *Auth) { a.recorder = r }
}

func WithBcryptCost(cost int) Option {
	return func(a *Auth) { a.bcryptCost = clampCost(cost) }
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	users UserStorage,
	sessions SessionStorage,
	tokens TokenIssuer,
	opts ...Option,
) *Auth {
	a := &Auth{
		logger:     logger,
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		bcryptCost: defaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Birthday  string
	OriginURL string
}

type AuthResult struct {
	Tokens  models.TokenPair
	Profile models.Profile
}

type FederatedResult struct {
	Tokens      models.TokenPair
	RedirectURL string
}

// Register creates a local account and starts its first session.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	const op = "auth.Register"
	defer func() { a.record("register", err) }()

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log := a.logger.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	log.Info("register request")

	if in.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}
	if err := validateBirthday(in.Birthday); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validateOriginURL(in.OriginURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.ensureEmailFree(ctx, email); err != nil {
		if errors.Is(err, ErrUserExists) {
			log.Warn("user already exists")
		} else {
			log.Error("failed to check email", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := a.hashPassword(in.Password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			log.Warn("password too long")
		} else {
			log.Error("failed to generate password hash", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Email:     email,
		PassHash:  passHash,
		Name:      in.Name,
		Birthday:  in.Birthday,
		AvatarURL: a.defaultAvatar(ctx, log),
		OriginURL: in.OriginURL,
	}

	user.ID, err = a.users.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens, err := a.startSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("userID", user.ID), slog.String("sessionID", tokens.SessionID))

	return &AuthResult{Tokens: tokens, Profile: user.Profile()}, nil
}

// Login verifies the password and starts a new session.
// Unknown email and wrong password both yield ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	const op = "auth.Login"
	defer func() { a.record("login", err) }()

	log := a.logger.With(slog.String("op", op))

	email, err = normalizeEmail(email)
	if err != nil {
		log.Warn("malformed email", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	log = log.With(slog.String("email", email))
	log.Info("login request")

	user, err := a.users.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := checkPassword(user.PassHash, password); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	tokens, err := a.startSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID), slog.String("sessionID", tokens.SessionID))

	return &AuthResult{Tokens: tokens, Profile: user.Profile()}, nil
}

// Refresh rotates the session named by refreshToken. The old session is taken
// atomically so a refresh token can be redeemed once. Any refresh token that
// fails verification burns the claimed session.
func (a *Auth) Refresh(ctx context.Context, claimedSessionID, refreshToken string) (pair *models.TokenPair, err error) {
	const op = "auth.Refresh"
	defer func() { a.record("refresh", err) }()

	log := a.logger.With(
		slog.String("op", op),
		slog.String("claimedSessionID", claimedSessionID),
	)
	log.Info("refresh request")

	if _, err := a.sessions.Session(ctx, claimedSessionID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Warn("claimed session not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
		}
		log.Error("failed to get session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payload, err := a.tokens.Verify(refreshToken, jwt.Refresh)
	if err != nil {
		log.Warn("refresh token rejected, burning claimed session", sl.Err(err))
		if err := a.sessions.DeleteSession(ctx, claimedSessionID); err != nil {
			log.Error("failed to delete claimed session", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	log = log.With(
		slog.String("userID", payload.UserID),
		slog.String("sessionID", payload.SessionID),
	)

	if _, err := a.users.UserByID(ctx, payload.UserID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidUser)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	old, err := a.sessions.TakeSession(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Warn("token session already retired")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
		}
		log.Error("failed to retire session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if old.UserID != payload.UserID {
		log.Warn("session owner mismatch", slog.String("ownerID", old.UserID))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	tokens, err := a.startSession(ctx, payload.UserID)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session rotated", slog.String("newSessionID", tokens.SessionID))

	return &tokens, nil
}

// Signout clears the user's denormalized tokens and deletes the session.
// A missing user or session is not an error.
func (a *Auth) Signout(ctx context.Context, userID, sessionID string) (err error) {
	const op = "auth.Signout"
	defer func() { a.record("signout", err) }()

	log := a.logger.With(
		slog.String("op", op),
		slog.String("userID", userID),
		slog.String("sessionID", sessionID),
	)
	log.Info("signout request")

	if err := a.users.UpdateUserTokens(ctx, userID, models.UserTokens{}); err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to clear user tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sessions.DeleteSession(ctx, sessionID); err != nil {
		log.Error("failed to delete session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user signed out")

	return nil
}

// Authenticate verifies an access token and returns the live session it names.
func (a *Auth) Authenticate(ctx context.Context, accessToken string) (*models.Session, error) {
	const op = "auth.Authenticate"

	log := a.logger.With(slog.String("op", op))

	payload, err := a.tokens.Verify(accessToken, jwt.Access)
	if err != nil {
		log.Debug("access token rejected", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	session, err := a.sessions.Session(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Debug("access token names a retired session", slog.String("sessionID", payload.SessionID))
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to get session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if session.UserID != payload.UserID {
		log.Warn("session owner mismatch", slog.String("sessionID", session.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	return session, nil
}

// FederatedAuthURL returns the identity provider consent URL.
func (a *Auth) FederatedAuthURL() (string, error) {
	if a.provider == nil {
		return "", ErrFederationDisabled
	}

	return a.provider.AuthCodeURL(), nil
}

// FederatedSignIn exchanges code for an email and signs in the matching local user.
// Federation never creates accounts: users without a prior registration get ErrNoLocalAccount.
func (a *Auth) FederatedSignIn(ctx context.Context, code string) (res *FederatedResult, err error) {
	const op = "auth.FederatedSignIn"
	defer func() { a.record("federated", err) }()

	if a.provider == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrFederationDisabled)
	}

	log := a.logger.With(slog.String("op", op))
	log.Info("federated sign-in callback")

	rawEmail, err := a.provider.Exchange(ctx, code)
	if err != nil {
		log.Error("failed to exchange authorization code", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email, err := normalizeEmail(rawEmail)
	if err != nil {
		log.Warn("provider returned malformed email", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrNoLocalAccount)
	}
	log = log.With(slog.String("email", email))

	user, err := a.users.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("no local account for federated email")
			return nil, fmt.Errorf("%s: %w", op, ErrNoLocalAccount)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.OriginURL == "" {
		log.Warn("local account has no origin url", slog.String("userID", user.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrNoLocalAccount)
	}

	tokens, err := a.startSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redirect, err := redirectWithTokens(user.OriginURL, tokens)
	if err != nil {
		log.Error("failed to build redirect", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("federated sign-in", slog.String("userID", user.ID), slog.String("sessionID", tokens.SessionID))

	return &FederatedResult{Tokens: tokens, RedirectURL: redirect}, nil
}

// startSession creates a session, issues its token pair and writes the pair back to the user.
func (a *Auth) startSession(ctx context.Context, userID string) (models.TokenPair, error) {
	session, err := a.sessions.CreateSession(ctx, userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	tokens, err := a.tokens.Issue(userID, session.ID)
	if err != nil {
		_ = a.sessions.DeleteSession(ctx, session.ID)
		return models.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	if err := a.users.UpdateUserTokens(ctx, userID, tokens.Tokens()); err != nil {
		return models.TokenPair{}, fmt.Errorf("update user tokens: %w", err)
	}

	return tokens, nil
}

func (a *Auth) defaultAvatar(ctx context.Context, log *slog.Logger) string {
	if a.avatars == nil {
		return ""
	}

	avatarURL, err := a.avatars.DefaultAvatarURL(ctx)
	if err != nil {
		log.Warn("default avatar unavailable", sl.Err(err))
		return ""
	}

	return avatarURL
}

func (a *Auth) record(flow string, err error) {
	if a.recorder == nil {
		return
	}
	a.recorder.Flow(flow, Outcome(err))
}

// Outcome classifies err into a short label for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUserExists):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrInvalidUser):
		return "not_found"
	case errors.Is(err, ErrNoLocalAccount):
		return "forbidden"
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrEmptyPassword),
		errors.Is(err, ErrPasswordTooLong), errors.Is(err, ErrInvalidBirthday),
		errors.Is(err, ErrInvalidOriginURL):
		return "bad_request"
	case errors.Is(err, ErrFederationDisabled):
		return "disabled"
	default:
		return "error"
	}
}

// redirectWithTokens appends the token pair to origin, keeping its existing query.
func redirectWithTokens(origin string, tokens models.TokenPair) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("accessToken", tokens.AccessToken)
	q.Set("refreshToken", tokens.RefreshToken)
	q.Set("sessionId", tokens.SessionID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
