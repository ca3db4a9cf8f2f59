package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// JwtKey signs and verifies access tokens. Set from JWT_SECRET at start-up.
var JwtKey []byte

const tokenLifetime = 24 * time.Hour

// Claims represents the JWT claims
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.StandardClaims
}

// GenerateJWT issues an HS256 token for the account.
func GenerateJWT(email, role string) (string, error) {
	if len(JwtKey) == 0 {
		return "", errors.New("jwt key is not configured")
	}
	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenLifetime).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JwtKey)
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return JwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Email == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
