package interfaces

import "context"

// TenantClient manages publisher identities and registration tokens in the
// SaaS tenant.
type TenantClient interface {
	// CreatePublisher registers a new publisher identity under the given name.
	// Fails with ErrDuplicateName if the name is taken, ErrAuthFailed on bad
	// credentials, ErrRateLimited on throttling.
	CreatePublisher(ctx context.Context, name string) (*PublisherIdentity, error)

	// GetPublisher fetches the current identity record, including its observed
	// connection status.
	GetPublisher(ctx context.Context, publisherID string) (*PublisherIdentity, error)

	// IssueToken issues a one-time registration token for the identity.
	// Fails with ErrNotFound if the identity does not exist.
	IssueToken(ctx context.Context, publisherID string) (*RegistrationToken, error)

	// DeletePublisher removes the identity. Fails with ErrConflict while an
	// instance is still connected. Deleting an already-deleted identity
	// succeeds silently.
	DeletePublisher(ctx context.Context, publisherID string) error
}

// SecretStore is an encrypted, access-controlled key-value store for
// registration tokens.
type SecretStore interface {
	// PutSecret writes the value encrypted at rest, overwriting if present.
	PutSecret(ctx context.Context, path, value string) error

	// GetSecret reads a value. Fails with ErrNotFound if absent and
	// ErrAccessDenied if the caller cannot decrypt. Decryption only happens
	// when decrypt is set.
	GetSecret(ctx context.Context, path string, decrypt bool) (string, error)

	// DeleteSecret removes the value. Idempotent.
	DeleteSecret(ctx context.Context, path string) error

	// Name identifies the backend for logging.
	Name() string
}

// ComputeProvisioner owns the lifecycle of publisher virtual machines.
type ComputeProvisioner interface {
	// Launch creates the unit's instance in an egress-only network segment
	// chosen by the unit's ordinal. The bootstrap script never embeds the
	// registration token.
	Launch(ctx context.Context, unit PublisherUnit) (*ComputeInstance, error)

	// Terminate requests instance termination. Idempotent for instances that
	// no longer exist.
	Terminate(ctx context.Context, instanceID string) error

	// WaitTerminated blocks until the instance reaches the terminated state,
	// bounded by the provisioner's poll ceiling.
	WaitTerminated(ctx context.Context, instanceID string) error

	// Find looks up a non-terminated instance by unit key. Returns
	// ErrNotFound if no such instance exists.
	Find(ctx context.Context, key UnitKey) (*ComputeInstance, error)
}

// ReadinessPoller blocks until an instance's remote-management agent reports a
// heartbeat, bounded by an attempt ceiling.
type ReadinessPoller interface {
	// WaitOnline returns nil on the first observed heartbeat and ErrTimedOut
	// after the configured attempt ceiling.
	WaitOnline(ctx context.Context, instanceID string) error
}

// RegistrationExecutor resolves the registration token server-side and runs
// the registration command on the target instance over the remote-execution
// channel.
type RegistrationExecutor interface {
	// StartRegistration resolves the token at tokenRef using the executor's
	// own identity and dispatches exactly one registration command to the
	// instance. Returns the execution id. Fails with ErrTokenConsumed if the
	// token was already used.
	StartRegistration(ctx context.Context, instanceID, tokenRef string) (string, error)

	// PollExecution blocks until the execution reaches a terminal status or
	// the poll ceiling is hit. The result carries captured stdout/stderr.
	PollExecution(ctx context.Context, executionID, instanceID string) (*ExecutionResult, error)
}

// StateStore persists the controller's view of live units.
type StateStore interface {
	Load(ctx context.Context) (map[UnitKey]*UnitRecord, error)
	Save(ctx context.Context, rec *UnitRecord) error
	Delete(ctx context.Context, key UnitKey) error
}

// PlanLock serializes reconciliation runs so two concurrent runs never
// disagree on desired state.
type PlanLock interface {
	// Lock blocks until the lock is held or ctx expires.
	Lock(ctx context.Context) error

	// Unlock releases a held lock.
	Unlock() error

	// ForceRelease breaks the lock regardless of holder. Operator escape
	// hatch, to be used only after confirming no other run is active.
	ForceRelease() error
}
