package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the bearer token payload issued by the identity provider.
type JWTClaims struct {
	UserGUID string `json:"guid"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}
