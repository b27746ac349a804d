package whisper_test

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/whisper"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds whisper.Credentials
		field string
	}{
		{"valid", whisper.Credentials{Username: "alice", Password: "pw"}, ""},
		{"missing username", whisper.Credentials{Password: "pw"}, "username"},
		{"blank username", whisper.Credentials{Username: "  ", Password: "pw"}, "username"},
		{"missing password", whisper.Credentials{Username: "alice"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.field == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, whisper.ErrCodeMissingField, err.Code)
			assert.Equal(t, tt.field, err.Field)
		})
	}
}

func TestBcryptCodec(t *testing.T) {
	stored, err := testCodec.Encode("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", stored)

	ok, err := testCodec.Verify("hunter2", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = testCodec.Verify("hunter3", stored)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := testCodec.Encode("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, stored, again, "each hash carries its own salt")

	_, err = testCodec.Verify("hunter2", "not-a-hash")
	assert.Error(t, err)
}

func generateKey(t *testing.T) string {
	var key fernet.Key
	require.NoError(t, key.Generate())
	return key.Encode()
}

func TestFernetCodecRoundTrip(t *testing.T) {
	codec, err := whisper.NewFernetCodec(generateKey(t))
	require.NoError(t, err)

	stored, err := codec.Encode("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, stored, "hunter2")

	plain, err := codec.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	ok, err := codec.Verify("hunter2", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = codec.Verify("Hunter2", stored)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := codec.Encode("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, stored, again, "tokens carry a fresh iv")
}

func TestFernetCodecKeyRotation(t *testing.T) {
	oldKey, newKey := generateKey(t), generateKey(t)
	before, err := whisper.NewFernetCodec(oldKey)
	require.NoError(t, err)
	stored, err := before.Encode("hunter2")
	require.NoError(t, err)

	rotated, err := whisper.NewFernetCodec(newKey, oldKey)
	require.NoError(t, err)
	ok, err := rotated.Verify("hunter2", stored)
	require.NoError(t, err)
	assert.True(t, ok, "tokens from a retired key still verify")

	fresh, err := rotated.Encode("hunter2")
	require.NoError(t, err)
	onlyNew, err := whisper.NewFernetCodec(newKey)
	require.NoError(t, err)
	ok, err = onlyNew.Verify("hunter2", fresh)
	require.NoError(t, err)
	assert.True(t, ok, "the first key encrypts")

	_, err = onlyNew.Decode(stored)
	assert.ErrorIs(t, err, whisper.ErrUndecryptable)
}

func TestFernetCodecPassphrase(t *testing.T) {
	a, err := whisper.NewFernetCodec("a long and boring passphrase")
	require.NoError(t, err)
	b, err := whisper.NewFernetCodec("a long and boring passphrase")
	require.NoError(t, err)

	stored, err := a.Encode("hunter2")
	require.NoError(t, err)
	ok, err := b.Verify("hunter2", stored)
	require.NoError(t, err)
	assert.True(t, ok, "the same passphrase derives the same key")

	other, err := whisper.NewFernetCodec("a different passphrase")
	require.NoError(t, err)
	_, err = other.Verify("hunter2", stored)
	assert.ErrorIs(t, err, whisper.ErrUndecryptable)
}

func TestFernetCodecRejectsEmptySecrets(t *testing.T) {
	_, err := whisper.NewFernetCodec()
	assert.Error(t, err)
	_, err = whisper.NewFernetCodec("  ")
	assert.Error(t, err)
}
