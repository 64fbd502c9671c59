package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims reads the subject and expiry of an ID token. The signature is
// not verified: the token comes straight from the provider over TLS and is
// only used to schedule refreshes.
func tokenClaims(idToken string) (subject string, expiresAt time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse id token: %w", err)
	}

	subject, err = claims.GetSubject()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid sub claim: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil {
		expiresAt = exp.Time
	}
	return subject, expiresAt, nil
}
