// Package credentials keeps model provider API keys for the vidq CLI in
// ~/.vidq/credentials.yaml, each key sealed with AES-256-GCM.
//
// The file key comes from VIDQ_ENCRYPTION_KEY (64 hex chars) when set,
// otherwise from the OS keyring (Keychain, Credential Manager or Secret
// Service). Machines without a keyring can set VIDQ_PASSPHRASE instead.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".vidq"
	DefaultCredentialsFile = "credentials.yaml"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no key is stored for a provider.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrInvalidCredentials is returned when stored credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials format")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials is the decrypted view of the credentials file.
type Credentials struct {
	// Keys maps a provider name ("openai", "http") to its API key.
	Keys map[string]string
	// Updated records when each key was last set.
	Updated map[string]time.Time
	// LastUpdated is the newest entry in Updated.
	LastUpdated time.Time
}

// Providers returns the providers with a stored key, sorted.
func (c *Credentials) Providers() []string {
	out := make([]string, 0, len(c.Keys))
	for p := range c.Keys {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

const fileVersion = 1

// credentialsFile is the on-disk layout. Each key is sealed with AES-GCM
// using its provider name as additional data, so entries cannot be swapped
// between providers.
type credentialsFile struct {
	Version int                  `yaml:"version"`
	Keys    map[string]sealedKey `yaml:"keys"`
}

type sealedKey struct {
	Ciphertext string    `yaml:"ciphertext"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

// Store manages credential storage operations.
type Store struct {
	// credentialsDir is the directory containing credentials.
	credentialsDir string
	// encryptionKey is the key used for encrypting/decrypting credentials.
	encryptionKey []byte
	// keyProvider is the source of the encryption key.
	keyProvider KeyProvider
}

// NewStore creates a new credential store with default settings.
// It uses the system keyring (macOS Keychain, Windows Credential Manager,
// or Linux Secret Service) to store the encryption key securely.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	keyProvider, err := GetDefaultKeyProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	return newStore(dir, keyProvider)
}

// NewStoreWithKeyProvider creates a new credential store with a custom key provider.
// This is primarily used for testing.
func NewStoreWithKeyProvider(keyProvider KeyProvider) (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}
	return newStore(dir, keyProvider)
}

func newStore(dir string, keyProvider KeyProvider) (*Store, error) {
	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		credentialsDir: dir,
		encryptionKey:  key,
		keyProvider:    keyProvider,
	}, nil
}

// KeyDescription describes where the encryption key lives.
func (s *Store) KeyDescription() string {
	return s.keyProvider.Description()
}

// CredentialsDir returns the credentials directory path.
// Uses $VIDQ_CONFIG_DIR if set, otherwise ~/.vidq
func CredentialsDir() (string, error) {
	if dir := os.Getenv("VIDQ_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath returns the full path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

// Save encrypts creds and replaces the credentials file atomically.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	now := time.Now().UTC()
	file := credentialsFile{Version: fileVersion, Keys: make(map[string]sealedKey, len(creds.Keys))}
	for provider, key := range creds.Keys {
		sealed, err := s.seal(provider, key)
		if err != nil {
			return fmt.Errorf("encrypting %s key: %w", provider, err)
		}
		updated := creds.Updated[provider]
		if updated.IsZero() {
			updated = now
		}
		file.Keys[provider] = sealedKey{Ciphertext: sealed, UpdatedAt: updated}
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.credentialsDir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		return fmt.Errorf("replacing credentials file: %w", err)
	}
	return nil
}

// Load reads and decrypts the credentials file.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if file.Version > fileVersion {
		return nil, fmt.Errorf("%w: file version %d is newer than this vidq", ErrInvalidCredentials, file.Version)
	}

	creds := &Credentials{
		Keys:    make(map[string]string, len(file.Keys)),
		Updated: make(map[string]time.Time, len(file.Keys)),
	}
	for provider, entry := range file.Keys {
		key, err := s.open(provider, entry.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s key: %w", provider, err)
		}
		creds.Keys[provider] = key
		creds.Updated[provider] = entry.UpdatedAt
		if entry.UpdatedAt.After(creds.LastUpdated) {
			creds.LastUpdated = entry.UpdatedAt
		}
	}
	return creds, nil
}

// SetAPIKey stores key for provider, keeping other providers' keys.
func (s *Store) SetAPIKey(provider, key string) error {
	provider = normalizeProvider(provider)
	key = strings.TrimSpace(key)
	if provider == "" || key == "" {
		return fmt.Errorf("%w: provider and key are required", ErrInvalidCredentials)
	}

	creds, err := s.Load()
	switch {
	case errors.Is(err, ErrNoCredentials):
		creds = &Credentials{Keys: map[string]string{}, Updated: map[string]time.Time{}}
	case err != nil:
		return err
	}
	creds.Keys[provider] = key
	creds.Updated[provider] = time.Now().UTC()
	return s.Save(creds)
}

// APIKey returns the stored key for provider, or ErrNoCredentials.
func (s *Store) APIKey(provider string) (string, error) {
	creds, err := s.Load()
	if err != nil {
		return "", err
	}
	if key := creds.Keys[normalizeProvider(provider)]; key != "" {
		return key, nil
	}
	return "", ErrNoCredentials
}

// DeleteAPIKey removes the key for provider. Removing the last key deletes
// the file.
func (s *Store) DeleteAPIKey(provider string) error {
	creds, err := s.Load()
	if errors.Is(err, ErrNoCredentials) {
		return nil
	}
	if err != nil {
		return err
	}
	delete(creds.Keys, normalizeProvider(provider))
	if len(creds.Keys) == 0 {
		return s.Delete()
	}
	return s.Save(creds)
}

// Delete removes the credentials file. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials file: %w", err)
	}
	return nil
}

// Exists reports whether the credentials file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

func (s *Store) path() string {
	return filepath.Join(s.credentialsDir, DefaultCredentialsFile)
}

func (s *Store) seal(provider, plaintext string) (string, error) {
	aead, err := newAEAD(s.encryptionKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(provider))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(provider, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}
	aead, err := newAEAD(s.encryptionKey)
	if err != nil {
		return "", err
	}
	n := aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}
	plaintext, err := aead.Open(nil, data[:n], data[n:], []byte(provider))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	return aead, nil
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// MaskAPIKey hides all but a recognizable prefix of apiKey.
func MaskAPIKey(apiKey string) string {
	const stars = "********"
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	for _, prefix := range []string{"sk-proj-", "sk-"} {
		if strings.HasPrefix(apiKey, prefix) {
			return prefix + stars + "..."
		}
	}
	return apiKey[:4] + stars + "..."
}

// GenerateAPIKeyID returns a short stable fingerprint of apiKey for display.
func GenerateAPIKeyID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
