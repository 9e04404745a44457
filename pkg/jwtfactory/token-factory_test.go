package jwtfactory

import (
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tokenAuth := jwtauth.New("HS256", []byte("secret"), nil)
	factory := New(tokenAuth, time.Hour)

	tokenString, err := factory.Generate("ops@example.com", "admin")
	require.NoError(t, err)

	token, err := jwtauth.VerifyToken(tokenAuth, tokenString)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", token.Subject())

	role, ok := token.Get(RoleClaimName)
	require.True(t, ok)
	assert.Equal(t, "admin", role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiration(), time.Minute)
}

func TestGenerate_Expired(t *testing.T) {
	tokenAuth := jwtauth.New("HS256", []byte("secret"), nil)
	factory := New(tokenAuth, -time.Hour)

	tokenString, err := factory.Generate("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = jwtauth.VerifyToken(tokenAuth, tokenString)
	assert.Error(t, err)
}

func TestGenerate_WrongSecret(t *testing.T) {
	factory := New(jwtauth.New("HS256", []byte("secret"), nil), time.Hour)
	tokenString, err := factory.Generate("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = jwtauth.VerifyToken(jwtauth.New("HS256", []byte("other"), nil), tokenString)
	assert.Error(t, err)
}
