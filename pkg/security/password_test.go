package security_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cheapConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher := security.NewHasher(cheapConfig())

	hash, err := hasher.Hash("very-secure-password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"), hash)

	ok, stale, err := hasher.Verify("very-secure-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, stale)

	ok, _, err = hasher.Verify("bogus-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := hasher.Hash("very-secure-password")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")
}

func TestVerifyFlagsStaleParams(t *testing.T) {
	old := security.NewHasher(cheapConfig())
	hash, err := old.Hash("correct horse")
	require.NoError(t, err)

	stronger := cheapConfig()
	stronger.ArgonTime = 2
	ok, stale, err := security.NewHasher(stronger).Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, stale)
}

func TestNewHasherClampsConfig(t *testing.T) {
	params := security.NewHasher(config.PasswordConfig{}).Params()
	assert.Equal(t, uint32(8), params.Memory)
	assert.Equal(t, uint32(1), params.Time)
	assert.Equal(t, uint8(1), params.Parallelism)
	assert.Equal(t, uint32(8), params.SaltLen)
	assert.Equal(t, uint32(16), params.KeyLen)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	hasher := security.NewHasher(cheapConfig())
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
	} {
		_, _, err := hasher.Verify("irrelevant", encoded)
		assert.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	assert.Error(t, security.CheckPasswordPolicy("short"))
	assert.Error(t, security.CheckPasswordPolicy("        "))
	assert.Error(t, security.CheckPasswordPolicy(strings.Repeat("x", 129)))
	assert.NoError(t, security.CheckPasswordPolicy("correct horse"))
}

func TestRandomBase36(t *testing.T) {
	value, err := security.RandomBase36(5)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-Z]{5}$`), value)

	_, err = security.RandomBase36(0)
	assert.Error(t, err)
}

func TestRandomTokenIsURLSafe(t *testing.T) {
	token, err := security.RandomToken(24)
	require.NoError(t, err)
	assert.Len(t, token, 32)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}
