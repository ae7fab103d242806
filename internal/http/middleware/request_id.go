package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"sessionauth/internal/http/apierror"
)

// RequestID keeps an incoming X-Request-Id or generates a 32-char hex one.
// The id is set on both the request and the response headers.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(apierror.RequestIDHeader)
			if id == "" {
				id = genID()
				r.Header.Set(apierror.RequestIDHeader, id)
			}
			w.Header().Set(apierror.RequestIDHeader, id)

			next.ServeHTTP(w, r)
		})
	}
}

func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
