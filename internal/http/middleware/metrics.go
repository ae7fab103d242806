package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type RequestObserver interface {
	Request(method, route string, status int, elapsed time.Duration)
}

// Metrics reports every request to obs, labelled with the matched chi route
// pattern so that path parameters do not blow up label cardinality.
func Metrics(obs RequestObserver) Middleware {
	return func(next http.Handler) http.Handler {
		if obs == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			obs.Request(r.Method, route, sw.Status(), time.Since(start))
		})
	}
}
