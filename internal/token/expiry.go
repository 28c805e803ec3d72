// Package token evaluates access-token expiry from un-verified claims.
// Signatures are never checked: the tokens are issued by a provider the
// client already authenticated to, and only the exp claim is read.
package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/errors"
)

// SafetyMargin is the lead time before actual expiry at which a token is
// already treated as expired, absorbing scheduling jitter and network
// latency.
const SafetyMargin = 300 * time.Second

type claims struct {
	Exp int64 `json:"exp"`
}

// ParseExpiration extracts the exp claim from a structured token without
// verifying its signature.
func ParseExpiration(tok string) (int64, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return 0, &errors.ErrTokenDecode{Reason: "expected 3 segments"}
	}

	payload := parts[1]
	if rem := len(payload) % 4; rem != 0 {
		payload += strings.Repeat("=", 4-rem)
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return 0, &errors.ErrTokenDecode{Reason: "claims segment is not valid base64url"}
	}

	var c claims
	if err := json.Unmarshal(decoded, &c); err != nil {
		return 0, &errors.ErrTokenDecode{Reason: "claims segment is not a JSON object"}
	}
	if c.Exp == 0 {
		return 0, &errors.ErrTokenDecode{Reason: "exp claim is missing"}
	}

	return c.Exp, nil
}

// IsWellFormed reports whether the token has a decodable 3-segment shape.
// Used by store validation; it does not look at expiry.
func IsWellFormed(tok string) bool {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return false
	}
	payload := parts[1]
	if rem := len(payload) % 4; rem != 0 {
		payload += strings.Repeat("=", 4-rem)
	}
	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return false
	}
	return json.Valid(decoded)
}

// Evaluator decides whether a credential needs refreshing. The zero value
// uses the wall clock; Now is overridable for tests.
type Evaluator struct {
	Now func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// NowUnix returns the evaluator's current time as a Unix timestamp.
func (e *Evaluator) NowUnix() int64 {
	return e.now().Unix()
}

// IsExpired reports whether the token is expired or within the safety
// margin of expiring. Fail-safe: unparsable input is treated as expired.
func (e *Evaluator) IsExpired(tok string) bool {
	exp, err := ParseExpiration(tok)
	if err != nil {
		return true
	}
	return e.IsExpiredAt(exp)
}

// IsExpiredAt applies the same comparison to a pre-computed expiry
// timestamp, for callers that cache access_token_expires_at instead of
// re-decoding on every check.
func (e *Evaluator) IsExpiredAt(expiresAt int64) bool {
	now := e.now().Unix()
	return now >= expiresAt || expiresAt-now < int64(SafetyMargin/time.Second)
}
