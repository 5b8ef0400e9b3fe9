package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// testEncryptionKey is a fixed 32-byte key for testing (hex-encoded to 64 chars)
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// newTestStore points the store at a temp dir with a fixed encryption key.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VIDQ_CONFIG_DIR", dir)
	t.Setenv("VIDQ_ENCRYPTION_KEY", testEncryptionKey)

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, dir
}

func TestCredentialsDir(t *testing.T) {
	t.Setenv("VIDQ_CONFIG_DIR", "")
	dir, err := CredentialsDir()
	if err != nil {
		t.Fatalf("CredentialsDir() error = %v", err)
	}
	home, _ := os.UserHomeDir()
	if expected := filepath.Join(home, DefaultCredentialsDir); dir != expected {
		t.Errorf("CredentialsDir() = %v, want %v", dir, expected)
	}

	t.Setenv("VIDQ_CONFIG_DIR", "/tmp/custom-vidq-dir")
	path, err := CredentialsPath()
	if err != nil {
		t.Fatalf("CredentialsPath() error = %v", err)
	}
	if expected := filepath.Join("/tmp/custom-vidq-dir", DefaultCredentialsFile); path != expected {
		t.Errorf("CredentialsPath() = %v, want %v", path, expected)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t)

	creds := &Credentials{Keys: map[string]string{
		"openai": "sk-test-api-key-12345",
		"http":   "local-token",
	}}
	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.Exists() {
		t.Error("Exists() = false after Save()")
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Keys["openai"] != "sk-test-api-key-12345" {
		t.Errorf("openai key = %q", loaded.Keys["openai"])
	}
	if loaded.Keys["http"] != "local-token" {
		t.Errorf("http key = %q", loaded.Keys["http"])
	}
	if loaded.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set")
	}
	if got := loaded.Providers(); len(got) != 2 || got[0] != "http" || got[1] != "openai" {
		t.Errorf("Providers() = %v, want [http openai]", got)
	}
}

func TestStore_SetAndGetAPIKey(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.APIKey("openai"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("APIKey() before set error = %v, want ErrNoCredentials", err)
	}

	if err := store.SetAPIKey(" OpenAI ", " sk-abc123456789 "); err != nil {
		t.Fatalf("SetAPIKey() error = %v", err)
	}
	if err := store.SetAPIKey("http", "vllm-token"); err != nil {
		t.Fatalf("SetAPIKey() error = %v", err)
	}

	key, err := store.APIKey("openai")
	if err != nil {
		t.Fatalf("APIKey() error = %v", err)
	}
	if key != "sk-abc123456789" {
		t.Errorf("APIKey() = %q, want trimmed key", key)
	}
	if _, err := store.APIKey("anthropic"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("APIKey(unknown) error = %v, want ErrNoCredentials", err)
	}

	if err := store.SetAPIKey("openai", ""); err == nil {
		t.Error("SetAPIKey() with empty key should fail")
	}
}

func TestStore_DeleteAPIKey(t *testing.T) {
	store, _ := newTestStore(t)

	// Deleting with nothing stored is fine.
	if err := store.DeleteAPIKey("openai"); err != nil {
		t.Fatalf("DeleteAPIKey() on empty store error = %v", err)
	}

	if err := store.SetAPIKey("openai", "sk-one-1234567"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAPIKey("http", "two"); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteAPIKey("openai"); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	if _, err := store.APIKey("openai"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("openai key should be gone, err = %v", err)
	}
	if !store.Exists() {
		t.Error("file should remain while other keys exist")
	}

	if err := store.DeleteAPIKey("http"); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	if store.Exists() {
		t.Error("file should be removed with the last key")
	}
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.SetAPIKey("openai", "sk-delete-me-123"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists() {
		t.Error("Exists() = true after Delete()")
	}
	// Second delete is a no-op.
	if err := store.Delete(); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStore_LoadNoCredentials(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Load(); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Load() error = %v, want ErrNoCredentials", err)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	store, dir := newTestStore(t)

	if err := os.WriteFile(filepath.Join(dir, DefaultCredentialsFile), []byte("keys: [not, a, map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Load() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestEncryption(t *testing.T) {
	store, dir := newTestStore(t)

	plaintext := "sk-super-secret-api-key"
	if err := store.SetAPIKey("openai", plaintext); err != nil {
		t.Fatalf("SetAPIKey() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, DefaultCredentialsFile))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(raw), plaintext) {
		t.Error("plaintext API key found in file")
	}

	info, err := os.Stat(filepath.Join(dir, DefaultCredentialsFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials permissions = %o, want 600", perm)
	}

	// A store with a different key cannot read it.
	t.Setenv("OTHER_KEY", "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210")
	other, err := NewStoreWithKeyProvider(NewEnvKeyProvider("OTHER_KEY"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Load(); !errors.Is(err, ErrEncryptionFailed) {
		t.Errorf("Load() with wrong key error = %v, want ErrEncryptionFailed", err)
	}
}

func TestEncryption_BoundToProvider(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.SetAPIKey("openai", "sk-openai-1234567"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAPIKey("http", "http-token-123"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, DefaultCredentialsFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var file credentialsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		t.Fatal(err)
	}
	if file.Version != fileVersion {
		t.Errorf("file version = %d, want %d", file.Version, fileVersion)
	}

	// Swap the sealed values between providers.
	file.Keys["openai"], file.Keys["http"] = file.Keys["http"], file.Keys["openai"]
	swapped, err := yaml.Marshal(&file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, swapped, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrEncryptionFailed) {
		t.Errorf("Load() after swap error = %v, want ErrEncryptionFailed", err)
	}
}

func TestStore_LoadNewerVersion(t *testing.T) {
	store, dir := newTestStore(t)

	if err := os.WriteFile(filepath.Join(dir, DefaultCredentialsFile), []byte("version: 9\nkeys: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Load() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestStore_PerKeyUpdated(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.SetAPIKey("openai", "sk-first-1234567"); err != nil {
		t.Fatal(err)
	}
	first, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	openaiAt := first.Updated["openai"]

	if err := store.SetAPIKey("http", "later-token"); err != nil {
		t.Fatal(err)
	}
	second, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !second.Updated["openai"].Equal(openaiAt) {
		t.Errorf("openai updated_at changed from %v to %v", openaiAt, second.Updated["openai"])
	}
	if !second.LastUpdated.Equal(second.Updated["http"]) {
		t.Errorf("LastUpdated = %v, want the http entry %v", second.LastUpdated, second.Updated["http"])
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"short", "*****"},
		{"sk-proj-abcdefghijklmnop", "sk-proj-********..."},
		{"sk-abcdefghijklmnop", "sk-********..."},
		{"abcdefghijklmnop", "abcd********..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := MaskAPIKey(tt.input); result != tt.expected {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGenerateAPIKeyID(t *testing.T) {
	id1 := GenerateAPIKeyID("sk-key-one")
	id2 := GenerateAPIKeyID("sk-key-two")

	if len(id1) != 8 {
		t.Errorf("GenerateAPIKeyID() length = %d, want 8", len(id1))
	}
	if id1 == id2 {
		t.Error("different keys should produce different IDs")
	}
	if GenerateAPIKeyID("sk-key-one") != id1 {
		t.Error("GenerateAPIKeyID() should be deterministic")
	}
}
