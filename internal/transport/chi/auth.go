package chi

import (
	"mime"
	"net/http"
	"strings"

	"github.com/kailas-cloud/dedup/internal/domain"
	dedupuc "github.com/kailas-cloud/dedup/internal/usecase/dedup"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// TokenAuthMiddleware returns a middleware that checks the token request
// parameter or a Bearer Authorization header. When require is false the token
// is accepted and ignored. When tokens is non-empty the token must be listed.
func TokenAuthMiddleware(require bool, tokens []string) func(http.Handler) http.Handler {
	validTokens := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			validTokens[t] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled: pass everything through
		if !require {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
				return
			}
			if len(validTokens) > 0 {
				if _, ok := validTokens[token]; !ok {
					writeJSONError(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestToken looks in the query string, then the Authorization header, then
// a form-encoded body. Other bodies are left unread.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get(dedupuc.ParamToken); t != "" {
		return t
	}

	const bearerPrefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}

	if r.Method == http.MethodPost {
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "application/x-www-form-urlencoded" {
			return r.PostFormValue(dedupuc.ParamToken)
		}
	}
	return ""
}
