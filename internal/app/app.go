package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	grpcapp "sessionauth/internal/app/grpc"
	httpapp "sessionauth/internal/app/http"
	"sessionauth/internal/config"
	httpapi "sessionauth/internal/http"
	"sessionauth/internal/lib/jwt"
	"sessionauth/internal/lib/sl"
	"sessionauth/internal/metrics"
	"sessionauth/internal/services/auth"
	"sessionauth/internal/services/federation"
	"sessionauth/internal/storage/minio"
	"sessionauth/internal/storage/mongodb"
	"sessionauth/internal/storage/postgres"
	"sessionauth/internal/storage/redis"
	"sessionauth/internal/storage/sqlite"
)

type App struct {
	logger  *slog.Logger
	GRPCSrv *grpcapp.App
	HTTPSrv *httpapp.App

	pingers []func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// backend stores both users and sessions.
type backend interface {
	auth.UserStorage
	auth.SessionStorage
	Ping(ctx context.Context) error
}

// New connects the configured stores and assembles the HTTP and gRPC servers.
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	a := &App{logger: logger}

	store, err := a.openStorage(ctx, cfg.Storage)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sessions auth.SessionStorage = store
	if cfg.Sessions.Driver == config.DriverRedis {
		rs, err := redis.New(ctx, cfg.Sessions.RedisURL, cfg.Sessions.Prefix, cfg.Tokens.RefreshTTL)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.track(rs.Ping, func(context.Context) error { return rs.Close() })
		sessions = rs
	}

	m := metrics.New()

	opts := []auth.Option{
		auth.WithBcryptCost(cfg.Password.BcryptCost),
		auth.WithFlowRecorder(m),
	}

	if cfg.Google.Enabled() {
		client := &http.Client{Timeout: cfg.HTTP.Timeout}
		opts = append(opts, auth.WithIdentityProvider(federation.NewGoogle(cfg.Google, cfg.HTTP.BaseURL, client)))
	} else {
		logger.Info("federated sign-in disabled")
	}

	if cfg.Avatars.Enabled() {
		avatars, err := minio.New(cfg.Avatars)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, auth.WithAvatars(avatars))
	}

	issuer := jwt.New(jwt.Config{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})

	authService := auth.New(logger, store, sessions, issuer, opts...)

	router := httpapi.NewRouter(authService, httpapi.Options{
		Logger:       logger,
		Timeout:      cfg.HTTP.Timeout,
		CallbackPath: cfg.Google.CallbackPath,
		Metrics:      m,
		Ready:        a.Ready,
	})

	a.HTTPSrv = httpapp.New(logger, router, cfg.HTTP.Port, cfg.HTTP.Timeout)
	a.GRPCSrv = grpcapp.New(logger, cfg.Grpc.Port, cfg.Env != config.EnvProd)

	return a, nil
}

// MustNew is New that panics on failure.
func MustNew(ctx context.Context, logger *slog.Logger, cfg *config.Config) *App {
	a, err := New(ctx, logger, cfg)
	if err != nil {
		panic(err)
	}

	return a
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig) (backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.track(s.Ping, func(context.Context) error { return s.Close() })
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.track(s.Ping, func(context.Context) error { s.Close(); return nil })
		return s, nil
	case config.DriverMongo:
		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		a.track(s.Ping, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

func (a *App) track(ping, closer func(ctx context.Context) error) {
	a.pingers = append(a.pingers, ping)
	a.closers = append(a.closers, closer)
}

// Ready pings every connected store.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, ping := range a.pingers {
		if err := ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Stop reports NOT_SERVING, drains both servers and closes the stores.
func (a *App) Stop(ctx context.Context) {
	const op = "app.Stop"

	log := a.logger.With(slog.String("op", op))

	a.GRPCSrv.SetServing(false)

	if err := a.HTTPSrv.Stop(ctx); err != nil {
		log.Error("failed to stop HTTP server", sl.Err(err))
	}
	a.GRPCSrv.Stop()

	a.close(ctx)
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
	a.closers = nil
}
