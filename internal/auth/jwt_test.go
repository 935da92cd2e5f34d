package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seal-agent/backend/internal/rbac"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", "ops", rbac.RoleViewer, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, rbac.RoleViewer, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestParseJWTRejects(t *testing.T) {
	good, err := GenerateJWT("secret", "ops", rbac.RoleViewer, time.Hour)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator:         "ops",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "secret", expired},
		{"wrong issuer", "secret", foreign},
		{"garbage", "secret", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJWT(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCheckOperatorKey(t *testing.T) {
	assert.NoError(t, CheckOperatorKey("k3y", "k3y"))
	assert.ErrorIs(t, CheckOperatorKey("k3y", "nope"), ErrInvalidOperatorKey)
	assert.ErrorIs(t, CheckOperatorKey("", ""), ErrInvalidOperatorKey)
}

func TestRoleForKey(t *testing.T) {
	role, err := RoleForKey("op", "view", "op")
	assert.NoError(t, err)
	assert.Equal(t, rbac.RoleOperator, role)

	role, err = RoleForKey("op", "view", "view")
	assert.NoError(t, err)
	assert.Equal(t, rbac.RoleViewer, role)

	_, err = RoleForKey("op", "", "")
	assert.ErrorIs(t, err, ErrInvalidOperatorKey)
}
