package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

// Environment variables consulted by GetDefaultKeyProvider.
const (
	EnvEncryptionKey = "VIDQ_ENCRYPTION_KEY"
	EnvPassphrase    = "VIDQ_PASSPHRASE"
)

const (
	keyringService = "vidq"
	keyringAccount = "credentials-key"

	// AES-256.
	keyLength  = 32
	saltLength = 16
	saltFile   = "credentials.salt"

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider supplies the key that encrypts the credentials file.
type KeyProvider interface {
	// GetKey returns the 32-byte key, creating one if the backend supports it.
	GetKey() ([]byte, error)
	// ResetKey replaces the key where the backend allows it.
	ResetKey() ([]byte, error)
	// Description names the backend for `vidq auth status`.
	Description() string
}

func decodeKey(keyHex, source string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", source, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key in %s must be %d bytes, got %d", source, keyLength, len(key))
	}
	return key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// KeyringKeyProvider keeps a random key in the OS keyring.
type KeyringKeyProvider struct {
	mu      sync.Mutex
	service string
	account string
}

// NewKeyringKeyProvider returns a provider bound to the vidq keyring entry.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{service: keyringService, account: keyringAccount}
}

// GetKey reads the stored key. A missing or malformed entry is replaced
// with a fresh one.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := keyring.Get(p.service, p.account)
	switch {
	case err == nil:
		if key, decErr := decodeKey(stored, "keyring"); decErr == nil {
			return key, nil
		}
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return p.rotate()
}

// ResetKey stores a new random key, orphaning anything encrypted with the old one.
func (p *KeyringKeyProvider) ResetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotate()
}

func (p *KeyringKeyProvider) rotate() ([]byte, error) {
	key, err := randomBytes(keyLength)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	if err := keyring.Set(p.service, p.account, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// PassphraseKeyProvider stretches a passphrase with Argon2id. The derived
// key is computed once per provider.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte

	once sync.Once
	key  []byte
	err  error
}

func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	p.once.Do(func() {
		switch {
		case p.passphrase == "":
			p.err = errors.New("passphrase is required")
		case len(p.salt) == 0:
			p.err = errors.New("salt is required")
		default:
			p.key = argon2.IDKey([]byte(p.passphrase), p.salt, argon2Time, argon2Memory, argon2Threads, keyLength)
		}
	})
	return p.key, p.err
}

// ResetKey returns the derived key unchanged; rotate by changing the passphrase.
func (p *PassphraseKeyProvider) ResetKey() ([]byte, error) {
	return p.GetKey()
}

func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id)"
}

// GenerateSalt returns a random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// LoadOrCreateSalt reads the passphrase salt from dir, creating one on
// first use.
func LoadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		salt, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(salt) == 0 {
			return nil, fmt.Errorf("%w: corrupt salt file %s", ErrInvalidCredentials, path)
		}
		return salt, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading salt: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex key from an environment variable. Used in CI
// and tests.
type EnvKeyProvider struct {
	envVar string
}

func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	keyHex := os.Getenv(p.envVar)
	if keyHex == "" {
		return nil, fmt.Errorf("environment variable %s not set", p.envVar)
	}
	return decodeKey(keyHex, p.envVar)
}

func (p *EnvKeyProvider) ResetKey() ([]byte, error) {
	return nil, errors.New("cannot reset environment-based key")
}

func (p *EnvKeyProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// GetDefaultKeyProvider picks the first usable key source:
// VIDQ_ENCRYPTION_KEY, then the OS keyring, then VIDQ_PASSPHRASE with a
// salt kept in dir.
func GetDefaultKeyProvider(dir string) (KeyProvider, error) {
	if os.Getenv(EnvEncryptionKey) != "" {
		return NewEnvKeyProvider(EnvEncryptionKey), nil
	}

	kp := NewKeyringKeyProvider()
	_, err := kp.GetKey()
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrKeyringUnavailable) {
		return nil, err
	}

	passphrase := os.Getenv(EnvPassphrase)
	if passphrase == "" {
		return nil, fmt.Errorf("set %s or %s: %w", EnvEncryptionKey, EnvPassphrase, err)
	}
	salt, err := LoadOrCreateSalt(dir)
	if err != nil {
		return nil, err
	}
	return NewPassphraseKeyProvider(passphrase, salt), nil
}
