// Package auth verifies the session credential presented on the websocket
// handshake and on REST calls.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carries the account id the same way the account service signs it.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	cookie string
}

func NewVerifier(secret, cookie string) *Verifier {
	if cookie == "" {
		cookie = "jwt"
	}
	return &Verifier{secret: []byte(secret), cookie: cookie}
}

// Issue signs a token for uid. Used by tests and the peer command; the real
// accounts are issued elsewhere.
func (v *Verifier) Issue(uid domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: string(uid),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses an HMAC signed token and returns the user it names.
func (v *Verifier) Verify(token string) (domain.UserID, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return "", ErrUnauthenticated
	}
	uid, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return "", ErrUnauthenticated
	}
	return uid, nil
}

// FromRequest reads the token from the auth cookie, falling back to a bearer
// Authorization header.
func (v *Verifier) FromRequest(r *http.Request) (domain.UserID, error) {
	if c, err := r.Cookie(v.cookie); err == nil && c.Value != "" {
		return v.Verify(c.Value)
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return v.Verify(strings.TrimSpace(token))
	}
	return "", ErrUnauthenticated
}

// Cookie names the cookie FromRequest reads the token from.
func (v *Verifier) Cookie() string { return v.cookie }
