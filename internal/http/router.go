// Package http assembles the chi router of the service.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sessionauth/internal/http/apierror"
	"sessionauth/internal/http/auth"
	"sessionauth/internal/http/middleware"
	"sessionauth/internal/metrics"
)

type Options struct {
	Logger       *slog.Logger
	Timeout      time.Duration
	CallbackPath string
	// Metrics enables /metrics and request observation when set.
	Metrics *metrics.Metrics
	// Ready backs /healthz. A nil Ready always reports healthy.
	Ready func(ctx context.Context) error
}

// NewRouter builds the http.Handler of the service.
func NewRouter(svc auth.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Route-aware middleware runs inside chi, the rest wraps the whole router.
	if opts.Metrics != nil {
		root.Use(middleware.Metrics(opts.Metrics))
		root.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	root.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, http.StatusNotFound, apierror.CodeNotFound, "not found")
	})
	root.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	root.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/healthz", healthz(opts.Ready))

	callback := opts.CallbackPath
	if callback == "" {
		callback = "/auth/google-redirect"
	}
	auth.New(opts.Logger, svc).Register(root, callback)

	return middleware.Chain(root,
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
		middleware.Timeout(opts.Timeout),
	)
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				apierror.Write(w, r, http.StatusServiceUnavailable, "unavailable", "service unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
