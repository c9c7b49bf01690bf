package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Token type tags embedded in every signed payload. Verification compares
// the tag explicitly, so a refresh token can never pass where an access
// token is required, regardless of which endpoint received it.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims carried by both token types.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
}

// TokenPair holds a short-lived access token and a long-lived refresh token
// bound to the same user.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// GenerateTokenPair signs an access/refresh token pair for the given user.
func GenerateTokenPair(userID int64, secret string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	access, err := signToken(userID, TokenTypeAccess, secret, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := signToken(userID, TokenTypeRefresh, secret, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshAccessToken verifies a refresh token and mints a new access token
// for the same user. Returns ErrInvalidToken if the token is malformed,
// expired, or not of the refresh type.
func RefreshAccessToken(refreshToken, secret string, accessTTL time.Duration) (string, error) {
	claims, err := parseToken(refreshToken, secret)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", ErrInvalidToken
	}
	return signToken(claims.UserID, TokenTypeAccess, secret, accessTTL)
}

// ValidateAccessToken verifies an access token and returns its claims.
// Returns ErrInvalidToken for malformed, expired, or refresh-typed tokens.
func ValidateAccessToken(tokenString, secret string) (*Claims, error) {
	claims, err := parseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func signToken(userID int64, tokenType, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chatledger",
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:    userID,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithIssuer("chatledger"))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
