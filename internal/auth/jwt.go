// Package auth verifies bearer tokens issued by the identity provider and
// turns them into domain principals.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/xiaot623/medeval/internal/domain"
)

const (
	claimRole   = "role"
	claimUserID = "user_id"
)

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// FromHeader extracts and verifies the token of an Authorization header.
func (v *Verifier) FromHeader(header string) (domain.Principal, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return domain.Principal{}, domain.Unauthenticated("missing Authorization header")
	}
	return v.Verify(strings.TrimSpace(token))
}

// Verify checks the token signature and expiry and returns its principal.
func (v *Verifier) Verify(raw string) (domain.Principal, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256(), v.secret))
	if err != nil {
		return domain.Principal{}, domain.Unauthenticated("invalid or expired token")
	}

	actorID, _ := tok.Subject()
	if actorID == "" {
		// Legacy identity service tokens carry user_id instead of sub.
		var uid any
		if err := tok.Get(claimUserID, &uid); err == nil {
			actorID = fmt.Sprint(uid)
		}
	}

	var role string
	if err := tok.Get(claimRole, &role); err != nil {
		return domain.Principal{}, domain.Unauthenticated("token has no role")
	}

	if actorID == "" {
		return domain.Principal{}, domain.Unauthenticated("token has no subject")
	}
	return domain.Principal{ActorID: actorID, Role: domain.Role(role)}, nil
}

// Issue mints a token for local tooling and tests.
func (v *Verifier) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(p.ActorID).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(claimRole, string(p.Role)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), v.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
