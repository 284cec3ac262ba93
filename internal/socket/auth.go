package socket

import (
	"fmt"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the verified result of a socket handshake token.
type IdentityClaims struct {
	Identity string
	jwt.RegisteredClaims
}

// Authenticator verifies the opaque handshake token sent on Connect (spec
// §4.6 step 1) and extracts the caller's identity.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator builds an Authenticator validating tokens signed with
// secret and issued by issuer.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates tokenString, returning the caller's identity.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrAuth, err)
	}
	if !token.Valid || claims.Identity == "" {
		return "", fmt.Errorf("%w: missing identity claim", apperrors.ErrAuth)
	}
	return claims.Identity, nil
}
