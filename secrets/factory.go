package secrets

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// StoreFactory creates secret store backends from URI strings.
type StoreFactory struct {
	log *slog.Logger
	ssm ssmiface.SSMAPI
}

// NewStoreFactory creates a factory. The SSM client may be nil if the
// awsssm:// scheme will not be used.
func NewStoreFactory(log *slog.Logger, ssmClient ssmiface.SSMAPI) *StoreFactory {
	return &StoreFactory{log: log, ssm: ssmClient}
}

// StoreFor creates a secret store backend from a location URI.
//
// Supported schemes:
//   - awsssm:// - AWS SSM Parameter Store, optional KMS key id as host: awsssm://alias/my-key
//   - vault://  - HashiCorp Vault KV v2: vault://vault.example.com:8200/secret
//   - file://   - Local filesystem (development and tests only): file:///var/lib/orchestrator/secrets
func (f *StoreFactory) StoreFor(locationURI string) (interfaces.SecretStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid secret store URI %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "awsssm":
		if f.ssm == nil {
			return nil, fmt.Errorf("awsssm backend requires an AWS SSM client")
		}
		kmsKeyID := u.Host
		if u.Path != "" {
			kmsKeyID += u.Path
		}
		return NewParameterStore(f.ssm, kmsKeyID, f.log), nil
	case "vault":
		mount := strings.Trim(u.Path, "/")
		if mount == "" {
			mount = "secret"
		}
		return NewVaultStore("https://"+u.Host, mount, f.log)
	case "file":
		return NewFileStore(u.Path, f.log)
	default:
		return nil, fmt.Errorf("unsupported secret store scheme: %s", u.Scheme)
	}
}
