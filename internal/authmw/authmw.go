// Package authmw provides HTTP middleware for bearer token authentication
// of the operator API.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const challenge = `Bearer realm="dispatch"`

// BearerToken returns middleware that accepts a request when its
// Authorization header carries a Bearer token equal to one of tokens.
// Several tokens allow rotation without downtime. Empty entries are ignored;
// with no usable token every request is rejected.
//
// Every candidate is compared in constant time, so the response time does
// not depend on which token matched.
func BearerToken(tokens ...string) func(http.Handler) http.Handler {
	expected := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			expected = append(expected, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				deny(w, r, "missing or malformed authorization header")
				return
			}
			if !matches(expected, got) {
				deny(w, r, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearer extracts the credentials of a Bearer authorization value. The
// scheme name is case-insensitive.
func bearer(auth string) ([]byte, bool) {
	scheme, cred, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, false
	}
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return nil, false
	}
	return []byte(cred), true
}

func matches(expected [][]byte, got []byte) bool {
	found := 0
	for _, e := range expected {
		found |= subtle.ConstantTimeCompare(got, e)
	}
	return found == 1
}

func deny(w http.ResponseWriter, r *http.Request, msg string) {
	log.FromContext(r.Context()).Warn(r.Context(), "api request rejected",
		"reason", msg,
		"method", r.Method,
		"path", r.URL.Path,
	)
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
