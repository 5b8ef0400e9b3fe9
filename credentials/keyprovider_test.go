package credentials

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestEnvKeyProvider(t *testing.T) {
	const envVar = "VIDQ_TEST_ENV_KEY"

	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"valid", testEncryptionKey, ""},
		{"unset", "", "not set"},
		{"not hex", "not-hex", "invalid key"},
		{"short", "0123456789abcdef", "must be 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVar, tt.value)
			p := NewEnvKeyProvider(envVar)

			key, err := p.GetKey()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testEncryptionKey, hex.EncodeToString(key))
		})
	}

	p := NewEnvKeyProvider(envVar)
	_, err := p.ResetKey()
	assert.Error(t, err)
	assert.Equal(t, "Environment variable (VIDQ_TEST_ENV_KEY)", p.Description())
}

func TestPassphraseKeyProvider(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	otherSalt, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, saltLength)
	assert.NotEqual(t, salt, otherSalt)

	derive := func(passphrase string, salt []byte) []byte {
		t.Helper()
		key, err := NewPassphraseKeyProvider(passphrase, salt).GetKey()
		require.NoError(t, err)
		require.Len(t, key, keyLength)
		return key
	}

	base := derive("correct horse", salt)
	assert.Equal(t, base, derive("correct horse", salt), "same inputs derive the same key")
	assert.NotEqual(t, base, derive("correct horse", otherSalt), "salt changes the key")
	assert.NotEqual(t, base, derive("wrong horse", salt), "passphrase changes the key")

	p := NewPassphraseKeyProvider("correct horse", salt)
	reset, err := p.ResetKey()
	require.NoError(t, err)
	assert.Equal(t, base, reset)
	assert.Contains(t, p.Description(), "Argon2id")

	_, err = NewPassphraseKeyProvider("", salt).GetKey()
	assert.EqualError(t, err, "passphrase is required")
	_, err = NewPassphraseKeyProvider("correct horse", nil).GetKey()
	assert.EqualError(t, err, "salt is required")
}

func TestKeyringKeyProvider(t *testing.T) {
	keyring.MockInit()

	p := NewKeyringKeyProvider()
	first, err := p.GetKey()
	require.NoError(t, err)
	assert.Len(t, first, keyLength)

	again, err := p.GetKey()
	require.NoError(t, err)
	assert.Equal(t, first, again, "stored key is reused")

	rotated, err := p.ResetKey()
	require.NoError(t, err)
	assert.NotEqual(t, first, rotated)

	require.NoError(t, keyring.Set(keyringService, keyringAccount, "garbage"))
	replaced, err := p.GetKey()
	require.NoError(t, err)
	assert.Len(t, replaced, keyLength, "malformed entry is replaced")

	assert.NotEmpty(t, p.Description())
}

func TestKeyringKeyProvider_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no dbus session"))
	t.Cleanup(keyring.MockInit)

	_, err := NewKeyringKeyProvider().GetKey()
	assert.ErrorIs(t, err, ErrKeyringUnavailable)
}

func TestGetDefaultKeyProvider(t *testing.T) {
	t.Run("env key wins", func(t *testing.T) {
		keyring.MockInit()
		t.Setenv(EnvEncryptionKey, testEncryptionKey)

		p, err := GetDefaultKeyProvider(t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &EnvKeyProvider{}, p)
	})

	t.Run("keyring", func(t *testing.T) {
		keyring.MockInit()
		t.Setenv(EnvEncryptionKey, "")

		p, err := GetDefaultKeyProvider(t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &KeyringKeyProvider{}, p)
	})

	t.Run("passphrase fallback", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("locked"))
		t.Cleanup(keyring.MockInit)
		t.Setenv(EnvEncryptionKey, "")
		t.Setenv(EnvPassphrase, "correct horse")
		dir := t.TempDir()

		p, err := GetDefaultKeyProvider(dir)
		require.NoError(t, err)
		assert.IsType(t, &PassphraseKeyProvider{}, p)
		assert.FileExists(t, filepath.Join(dir, saltFile))
	})

	t.Run("nothing available", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("locked"))
		t.Cleanup(keyring.MockInit)
		t.Setenv(EnvEncryptionKey, "")
		t.Setenv(EnvPassphrase, "")

		_, err := GetDefaultKeyProvider(t.TempDir())
		require.ErrorIs(t, err, ErrKeyringUnavailable)
		assert.Contains(t, err.Error(), EnvPassphrase)
	})
}

func TestLoadOrCreateSalt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")

	salt, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Len(t, salt, saltLength)

	again, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Equal(t, salt, again, "salt is stable once created")

	require.NoError(t, os.WriteFile(filepath.Join(dir, saltFile), []byte("zz"), 0600))
	_, err = LoadOrCreateSalt(dir)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPassphraseProvider_EncryptsStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VIDQ_CONFIG_DIR", dir)

	salt, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)

	store, err := NewStoreWithKeyProvider(NewPassphraseKeyProvider("correct horse", salt))
	require.NoError(t, err)
	require.NoError(t, store.SetAPIKey("openai", "sk-passphrase-key"))

	wrong, err := NewStoreWithKeyProvider(NewPassphraseKeyProvider("wrong horse", salt))
	require.NoError(t, err)
	_, err = wrong.APIKey("openai")
	assert.Error(t, err, "a different passphrase must not decrypt the key")
}
