package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/kesslerlabs/go-authcore"
)

func numericDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

func TestNewTokenValidatorRequiresURL(t *testing.T) {
	_, err := NewTokenValidator(Config{})
	require.Error(t, err)
}

func TestMapIdentityFirstSignIn(t *testing.T) {
	v := &TokenValidator{}
	authTime := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	identity := v.mapIdentity(&idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
		Email:            "user@example.com",
		Name:             "Test User",
		Picture:          "https://img.example.com/a.png",
		AuthTime:         numericDate(authTime),
		CreatedAt:        numericDate(authTime),
	})

	assert.Equal(t, "sub-1", identity.ID)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.Equal(t, "Test User", identity.DisplayName)
	assert.True(t, identity.IsNewUser())
}

func TestMapIdentityReturningUser(t *testing.T) {
	v := &TokenValidator{}
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	authTime := created.Add(30 * 24 * time.Hour)

	identity := v.mapIdentity(&idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
		AuthTime:         numericDate(authTime),
		CreatedAt:        numericDate(created),
	})

	assert.False(t, identity.IsNewUser())
	assert.True(t, identity.CreationTime.Equal(created))
	assert.True(t, identity.LastSignInTime.Equal(authTime))
}

func TestMapIdentityFallsBackToIssuedAt(t *testing.T) {
	v := &TokenValidator{}
	issued := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	identity := v.mapIdentity(&idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "sub-1",
			IssuedAt: numericDate(issued),
		},
	})

	assert.True(t, identity.LastSignInTime.Equal(issued))
	assert.True(t, identity.IsNewUser(), "no created_at means both timestamps ride on iat")
}

func TestConsentRequiresSource(t *testing.T) {
	consent := NewConsent(&TokenValidator{}, nil)

	_, err := consent.Open(context.Background())
	require.Error(t, err)

	var pce *authcore.ProviderCodeError
	require.True(t, errors.As(err, &pce))
	assert.Equal(t, "auth/operation-not-allowed", pce.Code)
}

func TestConsentPropagatesSourceError(t *testing.T) {
	cancelled := &authcore.ProviderCodeError{Code: "auth/popup-closed-by-user"}
	consent := NewConsent(&TokenValidator{}, func(ctx context.Context) (string, error) {
		return "", cancelled
	})

	_, err := consent.Open(context.Background())
	assert.Equal(t, cancelled, err)
}
