// Package oauth2 authenticates requests that carry an OAuth 2.0 bearer token.
package oauth2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
)

// bearerPattern is the b64token syntax of RFC 6750, section 2.1.
var bearerPattern = regexp.MustCompile(`^Bearer ([A-Za-z0-9~_\-\.\+/]+=*)$`)

// Result of a successful authentication.
type Result struct {
	UserID     int64
	AllowWrite bool
}

// Authenticate validates the bearer token of r. It returns false without an error if the request carries no
// bearer token. Tokens are looked up as given first, then by their hex encoded SHA-256 digest.
func Authenticate(ctx context.Context, r *http.Request, users selection.UserStore) (Result, bool, error) {
	m := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return Result{}, false, nil
	}

	token := m[1]
	lookup, err := users.GetUserIDForOAuth2Token(ctx, token)
	if err != nil {
		return Result{}, false, errors.Wrap(err, "look up token")
	}

	if !lookup.Found {
		digest := sha256.Sum256([]byte(token))
		if lookup, err = users.GetUserIDForOAuth2Token(ctx, hex.EncodeToString(digest[:])); err != nil {
			return Result{}, false, errors.Wrap(err, "look up hashed token")
		}
	}

	switch {
	case !lookup.Found:
		return Result{}, false, unauthorized("invalid_token")
	case lookup.Expired:
		return Result{}, false, unauthorized("token_expired")
	case lookup.Revoked:
		return Result{}, false, unauthorized("token_revoked")
	}

	return Result{UserID: lookup.UserID, AllowWrite: lookup.AllowWrite}, true, nil
}

func unauthorized(msg string) error { return osmhttp.NewErrorf(osmhttp.CodeUnauthorized, "%s", msg) }
