package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/EscrowBoard/internal/logger"
)

// HeaderCaller carries the identity of the account acting on the board.
// Authentication is delegated to the gateway in front of the service.
const HeaderCaller = "X-Caller"

// Caller is middleware that stores the X-Caller identity in the request
// context. Mutating requests without a caller are rejected with 401.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(HeaderCaller))
		if caller == "" && !safeMethod(r.Method) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"caller identity required","code":"MISSING_CALLER"}`))
			return
		}
		ctx := WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithCaller returns a context carrying caller. Log records written with the
// context are tagged with it.
func WithCaller(ctx context.Context, caller string) context.Context {
	return logger.WithCaller(ctx, caller)
}

// CallerFromContext returns the caller stored in ctx, or "" if absent.
func CallerFromContext(ctx context.Context) string {
	return logger.Caller(ctx)
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
