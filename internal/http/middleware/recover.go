package middleware

import (
	"log/slog"
	"net/http"

	"sessionauth/internal/http/apierror"
	"sessionauth/internal/lib/logctx"
)

// Recover turns a panic into 500 internal. The panic value is logged, never sent.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logctx.From(r.Context(), nil).LogAttrs(r.Context(), slog.LevelError, "panic",
						slog.String("path", r.URL.Path),
						slog.Any("reason", rec),
					)
					apierror.Internal(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
