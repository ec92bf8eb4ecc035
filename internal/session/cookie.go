package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the signed session credential.
const CookieName = "todo_session"

var errMalformedCredential = errors.New("malformed session credential")

// CookieCodec signs the opaque token (HS256) before it is handed to the
// client, so forged or tampered values are rejected without a store lookup.
// The signature alone never authenticates: the token must still resolve.
type CookieCodec struct {
	secret []byte
	secure bool
}

func NewCookieCodec(secret string, secure bool) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), secure: secure}
}

// Encode wraps token into a signed value valid until expiresAt.
func (c *CookieCodec) Encode(token string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        token,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session credential: %w", err)
	}
	return signed, nil
}

// Decode verifies value and returns the wrapped opaque token.
func (c *CookieCodec) Decode(value string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errMalformedCredential
	}
	return claims.ID, nil
}

// TokenFromRequest extracts and verifies the credential from the session
// cookie or an Authorization: Bearer header. ok is false when neither
// carries a valid signed value.
func (c *CookieCodec) TokenFromRequest(r *http.Request) (string, bool) {
	raw := ""
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		raw = ck.Value
	} else if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		raw = strings.TrimSpace(auth[7:])
	}
	if raw == "" {
		return "", false
	}
	token, err := c.Decode(raw)
	if err != nil {
		return "", false
	}
	return token, true
}

// SetCookie writes the signed credential as an HttpOnly cookie.
func (c *CookieCodec) SetCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on the client.
func (c *CookieCodec) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
