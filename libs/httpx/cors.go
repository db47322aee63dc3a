package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy controls which browser front ends may call the API.
type CORSPolicy struct {
	// AllowedOrigins lists exact origins; "*" admits any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSPolicy covers the booking endpoints. Stripe-Signature is never sent cross-origin.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	preflight   map[string]string
	exposed     string
}

func (p CORSPolicy) compile() corsRules {
	rules := corsRules{
		origins:     make(map[string]struct{}),
		credentials: p.AllowCredentials,
		preflight:   make(map[string]string),
		exposed:     joinList(p.ExposedHeaders),
	}
	for _, o := range cleanList(p.AllowedOrigins) {
		if o == "*" {
			rules.anyOrigin = true
			continue
		}
		rules.origins[strings.ToLower(o)] = struct{}{}
	}
	if v := joinList(p.AllowedMethods); v != "" {
		rules.preflight["Access-Control-Allow-Methods"] = v
	}
	if v := joinList(p.AllowedHeaders); v != "" {
		rules.preflight["Access-Control-Allow-Headers"] = v
	}
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		rules.preflight["Access-Control-Max-Age"] = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, if any.
// A wildcard is echoed as the concrete origin when credentials are allowed.
func (r corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := r.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !r.anyOrigin {
		return "", false
	}
	if r.credentials {
		return origin, true
	}
	return "*", true
}

// WithCORS answers preflights and decorates responses for allowed origins. An
// empty origin list disables it.
func WithCORS(p CORSPolicy) Middleware {
	rules := p.compile()
	if !rules.anyOrigin && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Add("Vary", "Origin")
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if rules.exposed != "" {
				h.Set("Access-Control-Expose-Headers", rules.exposed)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				for k, v := range rules.preflight {
					h.Set(k, v)
				}
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinList(values []string) string {
	return strings.Join(cleanList(values), ", ")
}
