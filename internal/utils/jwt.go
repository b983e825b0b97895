// Package utils provides helpers for issuing and verifying the signed
// tokens exchanged with clients.
package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences.  An availability token is never accepted as a bearer
// token and vice versa.
const (
	Issuer               = "table-reservation"
	AudienceAccess       = "access"
	AudienceAvailability = "availability"
)

// ErrInvalidToken is returned when a token fails signature, expiry,
// audience or subject checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT identifying a diner.  The
// subject claim carries the diner id in decimal form.
func NewAccessToken(secret string, dinerID uint64, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   strconv.FormatUint(dinerID, 10),
		Audience:  jwt.ClaimStrings{AudienceAccess},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns the diner id it was issued to.
func ParseAccessToken(secret, raw string) (uint64, error) {
	var claims jwt.RegisteredClaims
	if err := parse(secret, raw, AudienceAccess, &claims); err != nil {
		return 0, err
	}
	return subjectID(claims.Subject)
}

// parse checks the HMAC signature, expiry and audience of raw and decodes
// its claims into dst.
func parse(secret, raw, audience string, dst jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(raw, dst, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}

func subjectID(sub string) (uint64, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
