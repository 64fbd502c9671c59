package server

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"smartchef/internal/app"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookie = "smartchef_session"
	cookieIssuer  = "smartchef"
	cookieTTL     = 30 * 24 * time.Hour
)

// cookieSigner issues and verifies the session cookie, an HS256 token whose
// subject is the session key.
type cookieSigner struct {
	secret []byte
	now    func() time.Time
}

func newCookieSigner(secret string, log logrus.FieldLogger) *cookieSigner {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate session secret: %v", err))
		}
		log.Warn("Using an ephemeral session secret")
	}
	return &cookieSigner{secret: key, now: time.Now}
}

func (c *cookieSigner) sign(key string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   key,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cookieTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *cookieSigner) verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session cookie: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("invalid session cookie: empty subject")
	}
	return claims.Subject, nil
}

func (c *cookieSigner) read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	key, err := c.verify(cookie.Value)
	if err != nil {
		return "", false
	}
	return key, true
}

func (c *cookieSigner) issue(w http.ResponseWriter, r *http.Request) (string, error) {
	key := app.NewSessionKey()
	token, err := c.sign(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return key, nil
}
