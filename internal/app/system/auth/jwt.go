package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that parse but fail validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity claims issued by the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier returns a verifier for the given secret. When issuer is
// non-empty the "iss" claim must match it.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a token string.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for userID. The identity service owns issuance in
// production; this exists for tooling and tests.
func (v *TokenVerifier) Issue(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
