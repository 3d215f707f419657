package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserHashesPassword(t *testing.T) {
	u, err := CreateUser("Dana Tester", "dana@example.com", "s3cret-pass", ROLE_USER)
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
	assert.Equal(t, STATUS_ACTIVE, u.Status)
}

func TestCreateUserNormalizesUnknownRole(t *testing.T) {
	u, err := CreateUser("Dana Tester", "dana@example.com", "s3cret-pass", "superuser")
	require.NoError(t, err)

	assert.Equal(t, ROLE_USER, u.Role)
	assert.False(t, u.IsAdmin())
}

func TestCreateUserValidatesInput(t *testing.T) {
	_, err := CreateUser("D", "not-an-email", "s3cret-pass", ROLE_USER)
	assert.Error(t, err)
}

func TestSetPasswordReplacesHash(t *testing.T) {
	u, err := CreateUser("Dana Tester", "dana@example.com", "old-pass", ROLE_USER)
	require.NoError(t, err)

	require.NoError(t, u.SetPassword("new-pass"))
	assert.False(t, u.CheckPassword("old-pass"))
	assert.True(t, u.CheckPassword("new-pass"))
}
