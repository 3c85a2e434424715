package actor

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken_RoundTrip(t *testing.T) {
	signed := signToken(t, "secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "user-1",
		Email:  "user@example.test",
		Name:   "Test User",
		Role:   "lab_manager",
	})

	a, err := ParseToken(signed, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", a.ID)
	assert.Equal(t, "Test User", a.Name)
	assert.Equal(t, "lab_manager", a.Role)
}

func TestParseToken_WrongSecret(t *testing.T) {
	signed := signToken(t, "secret", Claims{UserID: "user-1"})

	_, err := ParseToken(signed, "other-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	signed := signToken(t, "secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "user-1",
	})

	_, err := ParseToken(signed, "secret")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	a := &Actor{ID: "user-1"}
	ctx := WithActor(context.Background(), a)
	assert.Equal(t, a, FromContext(ctx))
}

func TestCanManagePurchases(t *testing.T) {
	assert.True(t, (&Actor{Role: "admin"}).CanManagePurchases())
	assert.True(t, (&Actor{Role: "lab_manager"}).CanManagePurchases())
	assert.False(t, (&Actor{Role: "technician"}).CanManagePurchases())

	var nilActor *Actor
	assert.False(t, nilActor.CanManagePurchases())
}
