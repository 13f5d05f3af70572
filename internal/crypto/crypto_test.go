package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("test-secret")

	enc, err := EncryptPassword(key, "hunter2")
	require.NoError(t, err)
	require.NotContains(t, enc, "hunter2")

	got, err := DecryptPassword(key, enc)
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	key := DeriveKey("test-secret")

	a, err := EncryptPassword(key, "hunter2")
	require.NoError(t, err)
	b, err := EncryptPassword(key, "hunter2")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	enc, err := EncryptPassword(DeriveKey("right"), "hunter2")
	require.NoError(t, err)

	_, err = DecryptPassword(DeriveKey("wrong"), enc)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptGarbage(t *testing.T) {
	key := DeriveKey("test-secret")

	_, err := DecryptPassword(key, "not-hex")
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = DecryptPassword(key, "abcd")
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}
