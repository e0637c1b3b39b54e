// Package secrets loads the credentials the pipeline needs at the
// boundary: the LLM API key, CDN/S3 credentials, and the database DSN.
// Discovering or rotating secrets in a vault is out of scope; this
// package only reads them and makes sure they never reach a log line.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Secret is a named credential value. Value is deliberately excluded from
// JSON so a Secret can be logged or dumped in a debug struct without
// leaking.
type Secret struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"-"`
	Source    string    `json:"source"`
	LoadedAt  time.Time `json:"loaded_at"`
}

func (s *Secret) String() string { return string(s.Value) }

// NotFoundError reports a missing required credential.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not set", e.Key)
}

// Provider resolves named credentials. The only implementation shipped
// here is EnvProvider; a vault-backed provider can satisfy the same
// interface without touching callers.
type Provider interface {
	Get(ctx context.Context, key string) (*Secret, error)
}

// EnvProvider reads credentials from environment variables under a
// prefix, e.g. prefix "COFFEESCAN" + key "llm_api_key" -> env var
// COFFEESCAN_LLM_API_KEY.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider builds a provider keyed under prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: strings.ToUpper(prefix)}
}

func (p *EnvProvider) envKey(key string) string {
	if p.prefix == "" {
		return strings.ToUpper(key)
	}
	return p.prefix + "_" + strings.ToUpper(key)
}

// Get reads one credential, returning *NotFoundError if unset.
func (p *EnvProvider) Get(ctx context.Context, key string) (*Secret, error) {
	envKey := p.envKey(key)
	value := os.Getenv(envKey)
	if value == "" {
		return nil, &NotFoundError{Key: key}
	}
	return &Secret{Key: key, Value: []byte(value), Source: "env:" + envKey, LoadedAt: time.Now()}, nil
}

// Credentials is the fixed set of secrets the pipeline loads at startup,
// per spec §6 (LLM provider, CDN/S3, database).
type Credentials struct {
	LLMAPIKey     string
	S3AccessKeyID string
	S3SecretKey   string
	DatabaseDSN   string
}

// Load resolves every required credential from provider, failing fast on
// the first missing one so startup errors are loud rather than surfacing
// mid-run as an opaque auth failure.
func Load(ctx context.Context, provider Provider) (*Credentials, error) {
	get := func(key string) (string, error) {
		s, err := provider.Get(ctx, key)
		if err != nil {
			return "", err
		}
		return s.String(), nil
	}

	llmKey, err := get("llm_api_key")
	if err != nil {
		return nil, fmt.Errorf("loading llm_api_key: %w", err)
	}
	s3AccessKey, err := get("s3_access_key_id")
	if err != nil {
		return nil, fmt.Errorf("loading s3_access_key_id: %w", err)
	}
	s3SecretKey, err := get("s3_secret_key")
	if err != nil {
		return nil, fmt.Errorf("loading s3_secret_key: %w", err)
	}
	dsn, err := get("database_dsn")
	if err != nil {
		return nil, fmt.Errorf("loading database_dsn: %w", err)
	}

	return &Credentials{
		LLMAPIKey:     llmKey,
		S3AccessKeyID: s3AccessKey,
		S3SecretKey:   s3SecretKey,
		DatabaseDSN:   dsn,
	}, nil
}
