package service

import (
	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// DecodeClaims reads iat and exp from a JWT without verifying its signature.
// Opaque tokens and tokens without the claims yield zero values, which never expire.
func DecodeClaims(token string) domainauth.Claims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domainauth.Claims{}
	}

	var out domainauth.Claims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out
}
