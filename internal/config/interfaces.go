package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths in
// deployed environments, plain environment variable names locally).
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
