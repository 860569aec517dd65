package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmptySecret is returned when a manager is built without a secret.
	ErrEmptySecret = errors.New("jwt secret must not be empty")
	// ErrInvalidToken is returned for tokens that parse but fail validation.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenClaims represents the JWT token payload issued by the account service.
type TokenClaims struct {
	UserID int64  `json:"id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager verifies (and, for tests and tooling, issues) HS256 tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a new JWT manager from the shared secret.
func NewJWTManager(secret string) (*JWTManager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &JWTManager{secret: []byte(secret), ttl: 7 * 24 * time.Hour}, nil
}

// CreateToken signs a token for the given user.
func (m *JWTManager) CreateToken(userID int64, email string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyToken verifies and parses a JWT token.
func (m *JWTManager) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
