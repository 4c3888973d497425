package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// VaultStore implements the secret store on HashiCorp Vault's KV v2 engine.
// Per-path Vault policies provide the same scoping property as Parameter
// Store: only the registration executor's token may read registration-token
// paths.
type VaultStore struct {
	client    *vaultapi.Client
	mountPath string
	log       *slog.Logger
}

// NewVaultStore creates a Vault backend against the given server address and
// KV v2 mount. The Vault token comes from the standard VAULT_TOKEN
// environment variable via the API's default configuration.
func NewVaultStore(address, mountPath string, log *slog.Logger) (*VaultStore, error) {
	config := vaultapi.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := vaultapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	return &VaultStore{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		log:       log,
	}, nil
}

// dataPath maps a secret path to the KV v2 data endpoint.
func (s *VaultStore) dataPath(path string) string {
	return fmt.Sprintf("%s/data/%s", s.mountPath, strings.TrimPrefix(path, "/"))
}

// metadataPath maps a secret path to the KV v2 metadata endpoint.
func (s *VaultStore) metadataPath(path string) string {
	return fmt.Sprintf("%s/metadata/%s", s.mountPath, strings.TrimPrefix(path, "/"))
}

// PutSecret writes the value at the path, overwriting any previous version.
func (s *VaultStore) PutSecret(ctx context.Context, path, value string) error {
	start := time.Now()

	// KV v2 wraps the payload in a "data" envelope.
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"value": value,
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, s.dataPath(path), secretData); err != nil {
		return fmt.Errorf("failed to write to Vault at %s: %w", path, mapVaultError(err))
	}

	s.log.Debug("Stored secret in Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// GetSecret reads the value at the path. Vault decrypts server-side, so the
// decrypt flag only gates whether the value is returned at all: a read with
// decrypt=false answers existence via the metadata endpoint without touching
// the secret material.
func (s *VaultStore) GetSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	if !decrypt {
		secret, err := s.client.Logical().ReadWithContext(ctx, s.metadataPath(path))
		if err != nil {
			return "", fmt.Errorf("failed to read metadata from Vault at %s: %w", path, mapVaultError(err))
		}
		if secret == nil || secret.Data == nil {
			return "", fmt.Errorf("secret %s: %w", path, interfaces.ErrNotFound)
		}
		return "", nil
	}

	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault at %s: %w", path, mapVaultError(err))
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %s: %w", path, interfaces.ErrNotFound)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response for %s", path)
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", fmt.Errorf("value key not found in Vault data for %s", path)
	}
	return value, nil
}

// DeleteSecret removes the secret's metadata and all versions. Idempotent.
func (s *VaultStore) DeleteSecret(ctx context.Context, path string) error {
	if _, err := s.client.Logical().DeleteWithContext(ctx, s.metadataPath(path)); err != nil {
		if strings.Contains(err.Error(), "404") {
			return nil
		}
		return fmt.Errorf("failed to delete from Vault at %s: %w", path, mapVaultError(err))
	}

	s.log.Debug("Deleted secret from Vault", slog.String("path", path))
	return nil
}

// Name returns a unique identifier for this backend.
func (s *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s", s.mountPath)
}

func mapVaultError(err error) error {
	respErr, ok := err.(*vaultapi.ResponseError)
	if !ok {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", interfaces.ErrAccessDenied, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", interfaces.ErrRateLimited, err)
	}
	return err
}
