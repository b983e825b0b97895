package utils

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/table-reservation/internal/model"
)

// availabilityClaims carries a search result back to the reservation
// endpoint.  Signing it keeps clients from widening the candidate set or
// changing the party between search and reserve.
type availabilityClaims struct {
	Diners   uint32                   `json:"diners"`
	DinerIDs []uint64                 `json:"diner_ids"`
	Datetime time.Time                `json:"datetime"`
	Tables   model.TablesByRestaurant `json:"tables"`
	jwt.RegisteredClaims
}

// EncodeAvailability signs a snapshot for callerID.  It expires ttl after now.
func EncodeAvailability(secret string, callerID uint64, a model.Availability, ttl time.Duration, now time.Time) (string, error) {
	now = now.UTC()
	claims := availabilityClaims{
		Diners:   a.Diners,
		DinerIDs: a.DinerIDs,
		Datetime: a.Datetime.UTC(),
		Tables:   a.Tables,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatUint(callerID, 10),
			Audience:  jwt.ClaimStrings{AudienceAvailability},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DecodeAvailability verifies raw and returns the caller it was issued to
// together with the snapshot.  Any tampering, expiry or audience mismatch
// yields ErrInvalidToken.
func DecodeAvailability(secret, raw string) (uint64, model.Availability, error) {
	var claims availabilityClaims
	if err := parse(secret, raw, AudienceAvailability, &claims); err != nil {
		return 0, model.Availability{}, err
	}
	callerID, err := subjectID(claims.Subject)
	if err != nil {
		return 0, model.Availability{}, err
	}
	if claims.Tables == nil {
		claims.Tables = model.TablesByRestaurant{}
	}
	return callerID, model.Availability{
		Diners:   claims.Diners,
		DinerIDs: claims.DinerIDs,
		Datetime: claims.Datetime.UTC(),
		Tables:   claims.Tables,
	}, nil
}
