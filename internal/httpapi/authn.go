package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"curia.org/internal/authn"
)

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]struct{}{
	"/":              {},
	"/v1/auth/token": {},
	"/v1/info":       {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
	"/openapi.yaml":  {},
}

// withAuth resolves the bearer token into the actor id. Tokens carry identity
// only; every decision re-reads the profile from the store, so a stale role
// claim cannot widen access.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := authn.ParseAndValidate(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(authn.ContextWithActor(r.Context(), claims.Subject)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="curia"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// extractBearerToken pulls the credential out of an Authorization header.
// The scheme match is case-insensitive per RFC 7235.
func extractBearerToken(header string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("missing bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
