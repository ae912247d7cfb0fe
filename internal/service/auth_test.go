package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/testutil"
)

func TestAuthenticate(t *testing.T) {
	store := testutil.NewStore(t)
	users := NewUserService(store.Users)
	auth := NewAuthService(users, "test-secret", time.Hour)
	ctx := context.Background()

	token, err := auth.GenerateJWT("user-1", "User@Example.com")
	require.NoError(t, err)

	user, err := auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, model.RoleUser, user.Role)

	// The row is reused on the next request
	require.NoError(t, users.SetRole(ctx, "user-1", model.RoleAdmin))
	user, err = auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
}

func TestAuthenticateRejects(t *testing.T) {
	store := testutil.NewStore(t)
	auth := NewAuthService(NewUserService(store.Users), "test-secret", time.Hour)
	ctx := context.Background()

	sign := func(secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: sign("other", jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u"})},
		{name: "expired", token: sign("test-secret", jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(-time.Minute).Unix()})},
		{name: "no subject", token: sign("test-secret", jwt.SigningMethodHS256, jwt.MapClaims{"email": "a@b.co"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestUserServiceIgnoresInvalidEmail(t *testing.T) {
	store := testutil.NewStore(t)
	users := NewUserService(store.Users)
	ctx := context.Background()

	user, err := users.Ensure(ctx, "u1", "not an email")
	require.NoError(t, err)
	assert.Empty(t, user.Email)

	err = users.SetRole(ctx, "u1", "root")
	assert.ErrorIs(t, err, ErrValidation)

	err = users.SetRole(ctx, "ghost", model.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = users.ByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
