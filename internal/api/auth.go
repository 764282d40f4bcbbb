package api

import (
	"net/http"
	"strings"
)

// tokenPrefix marks a well-formed Thinkube access token. A value
// without it is never sent, so a mistyped or stale token degrades to
// anonymous access instead of tainting every request.
const tokenPrefix = "tk-"

// ValidToken reports whether token is well-formed enough to attach.
func ValidToken(token string) bool {
	return strings.HasPrefix(token, tokenPrefix)
}

// bearerTransport attaches the bearer credential to every outgoing
// request that has a well-formed token configured.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !ValidToken(t.token) {
		return t.base.RoundTrip(req)
	}
	// RoundTrip must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}
