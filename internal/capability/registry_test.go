package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	r := NewRegistry(db)
	require.NoError(t, r.Migrate())
	return r
}

func TestCreateKeyAndAuthenticate(t *testing.T) {
	r := newTestRegistry(t)

	key, secret, err := r.CreateKey("edge-service", []Permission{PermStream, PermIssueToken})
	require.NoError(t, err)
	require.NotEmpty(t, key.ID)
	require.NotEmpty(t, secret)
	// plaintext secret is never stored
	assert.NotContains(t, key.SecretHash, secret)

	scopes, err := r.Authenticate(key.ID, secret)
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermStream, PermIssueToken}, scopes)
}

func TestAuthenticateWrongSecret(t *testing.T) {
	r := newTestRegistry(t)

	key, _, err := r.CreateKey("edge-service", []Permission{PermStream})
	require.NoError(t, err)

	_, err = r.Authenticate(key.ID, "not-the-secret")
	assert.ErrorIs(t, err, ErrBadSecret)
}

func TestAuthenticateUnknownKey(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Authenticate("no-such-key", "whatever")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDisableKey(t *testing.T) {
	r := newTestRegistry(t)

	key, secret, err := r.CreateKey("edge-service", []Permission{PermStream})
	require.NoError(t, err)

	require.NoError(t, r.Disable(key.ID))

	_, err = r.Authenticate(key.ID, secret)
	assert.ErrorIs(t, err, ErrKeyDisabled)

	assert.ErrorIs(t, r.Disable("no-such-key"), ErrKeyNotFound)
}
