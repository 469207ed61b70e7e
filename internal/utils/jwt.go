package utils

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// RoomTokenClaims represents the claims in a room access token.
type RoomTokenClaims struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// ValidateRoomToken validates a JWT token and returns the claims.
func ValidateRoomToken(secret []byte, tokenString string) (*RoomTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	return token.Claims.(*RoomTokenClaims), nil
}

// ExtractTokenFromHeader extracts the token from the Authorization header.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", errors.New("invalid authorization header format")
	}
	return authHeader[7:], nil
}
