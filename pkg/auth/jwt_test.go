package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_RoundTrip(t *testing.T) {
	v := NewValidator("test-secret")
	token, err := v.IssueToken("user-1", time.Minute)
	require.NoError(t, err)

	userID, err := v.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestValidator_WrongSecret(t *testing.T) {
	token, err := NewValidator("secret-a").IssueToken("user-1", time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("secret-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidator_Expired(t *testing.T) {
	v := NewValidator("test-secret")
	token, err := v.IssueToken("user-1", -2*time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidator_MissingToken(t *testing.T) {
	_, err := NewValidator("test-secret").ValidateToken("")
	assert.Error(t, err)
}
