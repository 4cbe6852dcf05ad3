package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := GenerateUserToken("user-1", "a@example.com", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)

	userID, err := UserIDFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "a@example.com", EmailFromClaims(claims))
	assert.False(t, IsSysop(claims))
}

func TestValidateJWTRejects(t *testing.T) {
	t.Parallel()

	token, err := GenerateUserToken("user-1", "", "secret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateJWT(token, "other")
	require.Error(t, err)

	expired, err := GenerateUserToken("user-1", "", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "secret")
	require.Error(t, err)
}

func TestSysopToken(t *testing.T) {
	t.Parallel()

	token, err := GenerateSysopToken("secret", time.Hour)
	require.NoError(t, err)
	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.True(t, IsSysop(claims))
}

func TestPasswords(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
	assert.False(t, CheckPassword("", "hunter2"))
}

func TestGenerateULIDIsUnique(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, GenerateULID(), GenerateULID())
	assert.Len(t, GenerateULID(), 26)
}
