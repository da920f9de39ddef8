package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "bearer "
)

// Auth guards the API with a single shared key, accepted either as
// "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty key disables
// the check. Paths listed in public and CORS preflights always pass.
func Auth(key string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(key)

	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := credential(r)
			switch {
			case !ok:
				denyAuth(w, "missing API key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				denyAuth(w, "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// credential returns the presented key. The Authorization header wins when
// both are sent.
func credential(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); len(h) > len(bearerPrefix) &&
		strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		if tok := strings.TrimSpace(h[len(bearerPrefix):]); tok != "" {
			return tok, true
		}
	}
	if k := strings.TrimSpace(r.Header.Get(apiKeyHeader)); k != "" {
		return k, true
	}
	return "", false
}

func denyAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cryptoagent"`)
	writeDetail(w, http.StatusUnauthorized, msg)
}
