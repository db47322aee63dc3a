package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Actor is the authenticated caller as resolved by the identity service.
type Actor struct {
	ID   string
	Role string
}

type ctxKey int

const ctxKeyActor ctxKey = iota

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok && a.ID != ""
}

// RequireActor rejects requests without a valid bearer token and stores the Actor in the context.
func RequireActor(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				logger.Debug("token rejected", "err", err)
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := WithActor(r.Context(), Actor{ID: claims.Subject, Role: strings.ToLower(claims.Role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="vetbook"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
