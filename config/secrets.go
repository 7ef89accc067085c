package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSecretNotFound is returned when a store has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, def string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	if v, err := s.Get(ctx, key); err == nil {
		return v
	}
	return def
}

// FileSecretStore reads one secret per file from a directory, the layout
// used by Docker and Kubernetes secret mounts.
type FileSecretStore struct {
	Dir string
}

func NewFileSecretStore(dir string) *FileSecretStore { return &FileSecretStore{Dir: dir} }

func (s *FileSecretStore) Get(_ context.Context, key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid secret key %q", key)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, key)) // #nosec G304 - key sanitized above
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	if v, err := s.Get(ctx, key); err == nil {
		return v
	}
	return def
}

// Secret keys consulted by LoadSecrets.
const (
	SecretSQLDSN        = "GOALCONNECT_SQL_DSN"
	SecretRedisPassword = "GOALCONNECT_REDIS_PASSWORD"
	SecretAPIKeys       = "GOALCONNECT_SECURITY_API_KEYS"
)

// LoadSecrets fills connection secrets from store, leaving values that are
// already set untouched.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) error {
	if c.Storage.SQL.DSN == "" {
		c.Storage.SQL.DSN = store.GetWithDefault(ctx, SecretSQLDSN, "")
	}
	if c.Storage.Redis.Password == "" {
		c.Storage.Redis.Password = store.GetWithDefault(ctx, SecretRedisPassword, "")
	}
	if len(c.Security.APIKeys) == 0 {
		if raw := store.GetWithDefault(ctx, SecretAPIKeys, ""); raw != "" {
			for _, k := range strings.Split(raw, ",") {
				if k = strings.TrimSpace(k); k != "" {
					c.Security.APIKeys = append(c.Security.APIKeys, k)
				}
			}
		}
	}
	if c.Storage.Adapter == "sql" && c.Storage.SQL.DSN == "" {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, SecretSQLDSN)
	}
	return nil
}
