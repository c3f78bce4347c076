// This file defines the identity derived from the backend's bearer token.
//
// The token is treated as opaque except for its JWT payload, which is decoded
// without signature verification: presence of a token optimistically marks the
// session authenticated, and the backend remains the authority on every call.
package domain

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Identity is the user identity carried in the bearer token payload.
type Identity struct {
	UserID string
	Email  string
	Expiry time.Time
}

// Expired reports whether the token claims an expiry in the past. A zero
// expiry (claim absent) is treated as not expired; the backend's 401 is the
// real authority.
func (i Identity) Expired() bool {
	return !i.Expiry.IsZero() && time.Now().After(i.Expiry)
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	Sub    string `json:"sub"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
}

// ParseIdentity decodes the payload segment of a JWT bearer token.
// The signature is not checked; an undecodable token yields an EINVALID error.
func ParseIdentity(token string) (Identity, error) {
	const op = "identity.parse"

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, Invalid(op, "token is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// Some issuers pad the segment.
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return Identity{}, Invalid(op, "token payload is not base64")
		}
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Identity{}, Invalid(op, "token payload is not JSON")
	}

	id := Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
	}
	if id.UserID == "" {
		id.UserID = claims.Sub
	}
	if claims.Exp > 0 {
		id.Expiry = time.Unix(claims.Exp, 0)
	}
	return id, nil
}
