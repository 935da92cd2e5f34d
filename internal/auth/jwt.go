package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seal-agent/backend/internal/rbac"
)

const issuer = "seal-agent"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidOperatorKey = errors.New("invalid operator key")
)

// Claims identify an operator session on the control API.
type Claims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT signs an operator token. expiration <= 0 means 24h.
func GenerateJWT(secret, operator, role string, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	now := time.Now()

	claims := Claims{
		Operator: operator,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckOperatorKey compares in constant time. An empty configured key never matches.
func CheckOperatorKey(configured, presented string) error {
	if configured == "" || subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
		return ErrInvalidOperatorKey
	}
	return nil
}

// RoleForKey maps a presented key to the role it grants.
func RoleForKey(operatorKey, viewerKey, presented string) (string, error) {
	if CheckOperatorKey(operatorKey, presented) == nil {
		return rbac.RoleOperator, nil
	}
	if CheckOperatorKey(viewerKey, presented) == nil {
		return rbac.RoleViewer, nil
	}
	return "", ErrInvalidOperatorKey
}
