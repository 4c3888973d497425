package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// ParameterStore implements the secret store on AWS SSM Parameter Store.
// Values are written as SecureString parameters so they are encrypted at
// rest with the configured KMS key, and per-path IAM policies keep the
// decrypt permission scoped to the registration executor's identity, never
// the publisher instance's own role.
type ParameterStore struct {
	client   ssmiface.SSMAPI
	kmsKeyID string
	log      *slog.Logger
}

// NewParameterStore creates a Parameter Store backend. kmsKeyID is optional;
// when empty the account's default SSM key is used.
func NewParameterStore(client ssmiface.SSMAPI, kmsKeyID string, log *slog.Logger) *ParameterStore {
	return &ParameterStore{
		client:   client,
		kmsKeyID: kmsKeyID,
		log:      log,
	}
}

// PutSecret writes the value as an encrypted parameter, overwriting any
// previous value at the path.
func (s *ParameterStore) PutSecret(ctx context.Context, path, value string) error {
	start := time.Now()

	input := &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      aws.String(ssm.ParameterTypeSecureString),
		Overwrite: aws.Bool(true),
	}
	if s.kmsKeyID != "" {
		input.KeyId = aws.String(s.kmsKeyID)
	}

	if _, err := s.client.PutParameterWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", path, mapAWSError(err))
	}

	s.log.Debug("Stored secret in Parameter Store",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// GetSecret reads a parameter, decrypting it only when decrypt is set.
func (s *ParameterStore) GetSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	result, err := s.client.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", path, mapAWSError(err))
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s: %w", path, interfaces.ErrNotFound)
	}

	return aws.StringValue(result.Parameter.Value), nil
}

// DeleteSecret removes the parameter. Deleting an absent parameter succeeds.
func (s *ParameterStore) DeleteSecret(ctx context.Context, path string) error {
	_, err := s.client.DeleteParameterWithContext(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(path),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == ssm.ErrCodeParameterNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete parameter %s: %w", path, mapAWSError(err))
	}

	s.log.Debug("Deleted secret from Parameter Store", slog.String("path", path))
	return nil
}

// Name returns a unique identifier for this backend.
func (s *ParameterStore) Name() string {
	return "awsssm"
}

// mapAWSError translates SDK errors into the shared taxonomy. Access denials
// must stay distinguishable from absence so token-scoping mistakes surface as
// such instead of looking like missing secrets.
func mapAWSError(err error) error {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return err
	}
	switch aerr.Code() {
	case ssm.ErrCodeParameterNotFound:
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, aerr.Message())
	case "AccessDeniedException", "AccessDenied":
		return fmt.Errorf("%w: %s", interfaces.ErrAccessDenied, aerr.Message())
	case "ThrottlingException", "TooManyUpdates":
		return fmt.Errorf("%w: %s", interfaces.ErrRateLimited, aerr.Message())
	}
	return err
}
