package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func TestInspectReadsUserAndExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := sign(t, &Claims{ID: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}})

	id, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, id.ExpiresAt.Equal(exp))
	assert.False(t, id.Expired(time.Now()))
}

func TestInspectFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		want   string
	}{
		{"user_id", &Claims{UserID: "u2"}, "u2"},
		{"subject", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u3"}}, "u3"},
		{"id wins", &Claims{ID: "u1", UserID: "u2"}, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Inspect(sign(t, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.UserID)
		})
	}
}

func TestInspectErrors(t *testing.T) {
	_, err := Inspect("not-a-token")
	assert.Error(t, err)

	_, err = Inspect(sign(t, &Claims{}))
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestValidateExpired(t *testing.T) {
	tok := sign(t, &Claims{ID: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}})

	id, err := Validate(tok, time.Now())
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "u1", id.UserID)
}
