package auth

import (
	"errors"
	"strings"
)

var ErrUnverifiedEmail = errors.New("email not verified")

// Verifier checks bearer tokens. RS256 tokens carrying a kid are checked against
// the JWKS (the identity provider); anything else falls back to the HS256 shared
// secret, which is only meant for local development.
type Verifier struct {
	Secret   string
	JWKS     *JWKSClient
	Audience string
	Issuer   string

	RequireVerifiedEmail bool
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims *Claims
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if v.JWKS != nil && header.Alg == "RS256" && header.Kid != "" {
		pub, keyErr := v.JWKS.Get(header.Kid)
		if keyErr != nil {
			return nil, ErrInvalidToken
		}
		claims, err = VerifyRS256(token, pub)
	} else {
		claims, err = ParseAndVerifyHS256(token, v.Secret)
	}
	if err != nil {
		return nil, err
	}

	if v.Audience != "" && claims.Aud != v.Audience {
		return nil, ErrInvalidToken
	}
	if v.Issuer != "" && claims.Iss != v.Issuer {
		return nil, ErrInvalidToken
	}
	if v.RequireVerifiedEmail && !claims.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
