package directory

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSecretStructure(t *testing.T) {
	encoded, err := EncodeSecret("hunter2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, sshaPrefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, sshaPrefix))
	require.NoError(t, err)
	require.Len(t, raw, sha1.Size+saltLength)

	digest, salt := raw[:sha1.Size], raw[sha1.Size:]
	h := sha1.New()
	h.Write([]byte("hunter2"))
	h.Write(salt)
	assert.Equal(t, h.Sum(nil), digest)
}

func TestEncodeSecretDeterministicWithFixedSalt(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}
	first := encodeSecretWithSalt("hunter2", salt)
	second := encodeSecretWithSalt("hunter2", salt)
	assert.Equal(t, first, second)

	other := encodeSecretWithSalt("different", salt)
	assert.NotEqual(t, first, other)
}

func TestEncodeSecretRandomSalt(t *testing.T) {
	first, err := EncodeSecret("hunter2")
	require.NoError(t, err)
	second, err := EncodeSecret("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncodeSecretPrehashedPassthrough(t *testing.T) {
	prehashed := "{SSHA}AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	encoded, err := EncodeSecret(prehashed)
	require.NoError(t, err)
	assert.Equal(t, prehashed, encoded)
}
