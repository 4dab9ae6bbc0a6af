package workos

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingClaims marks a decodable access token whose payload lacks one of
// the required fields (sub, email, sid).
var ErrMissingClaims = errors.New("access token payload missing required claims")

// Claims is the decoded payload of a WorkOS access token. The token's
// signature and issuer were validated by WorkOS when the session was sealed
// or refreshed; decoding here is payload extraction only.
type Claims struct {
	Subject        string
	Email          string
	SessionID      string
	OrganizationID string
	Role           string
	ExpiresAt      *time.Time
}

// DecodeClaims decodes an access token payload without verifying its
// signature. On ErrMissingClaims the returned Claims still carries whatever
// fields were present, so expiry can be checked regardless.
func DecodeClaims(accessToken string) (Claims, error) {
	parsed := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, parsed); err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}

	claims := Claims{
		Subject:        stringClaim(parsed, "sub"),
		Email:          stringClaim(parsed, "email"),
		SessionID:      stringClaim(parsed, "sid"),
		OrganizationID: stringClaim(parsed, "org_id"),
		Role:           stringClaim(parsed, "role"),
	}
	if exp, err := parsed.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = &exp.Time
	}

	if claims.Subject == "" || claims.Email == "" || claims.SessionID == "" {
		return claims, ErrMissingClaims
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
