package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/npa-publisher-orchestrator/compute"
	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/remotecmd"
	"github.com/ruteri/npa-publisher-orchestrator/secrets"
	"github.com/ruteri/npa-publisher-orchestrator/tenant"
)

// mockSet wires the controller to expectation-based mocks instead of the
// harness fakes, so tests can pin down exactly which collaborator calls
// happen after an injected failure.
type mockSet struct {
	tenant   *tenant.MockClient
	secrets  *secrets.MockStore
	compute  *compute.MockProvisioner
	poller   *remotecmd.MockPoller
	executor *remotecmd.MockExecutor
}

func newMockController(t *testing.T) (*Controller, *mockSet) {
	t.Helper()
	m := &mockSet{
		tenant:   &tenant.MockClient{},
		secrets:  &secrets.MockStore{},
		compute:  &compute.MockProvisioner{},
		poller:   &remotecmd.MockPoller{},
		executor: &remotecmd.MockExecutor{},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	state, err := NewFileStateStore(filepath.Join(dir, "state.json"), log)
	require.NoError(t, err)

	controller, err := New(Config{
		App:      "npa",
		Tenant:   m.tenant,
		Secrets:  m.secrets,
		Compute:  m.compute,
		Poller:   m.poller,
		Executor: m.executor,
		State:    state,
		Lock:     NewFlockPlanLock(filepath.Join(dir, "plan.lock"), 0, log),
		Log:      log,
	})
	require.NoError(t, err)
	return controller, m
}

func (m *mockSet) expectIdentityAndToken() {
	m.tenant.On("CreatePublisher", mock.Anything, "npa-pub").Return(&interfaces.PublisherIdentity{
		PublisherID: "pub-1",
		Name:        "npa-pub",
		Status:      interfaces.PublisherPending,
	}, nil)
	m.tenant.On("IssueToken", mock.Anything, "pub-1").Return(&interfaces.RegistrationToken{
		PublisherID: "pub-1",
		Value:       "one-time-secret",
	}, nil)
}

func TestCreateUnit_SecretWriteFailureStopsBeforeLaunch(t *testing.T) {
	controller, m := newMockController(t)
	m.expectIdentityAndToken()
	m.secrets.On("PutSecret", mock.Anything, interfaces.SecretPath("npa", "npa-pub"), mock.Anything).
		Return(errors.New("kms key disabled"))

	report, err := controller.Reconcile(context.Background(), desiredSet(t, 1))
	require.NoError(t, err)
	require.Error(t, report.Err())

	result := report.Results["npa-pub"]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, StepStoreToken, result.Step)

	// A token that never reached the store must not produce an instance.
	m.compute.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
	m.tenant.AssertExpectations(t)
	m.secrets.AssertExpectations(t)
}

func TestCreateUnit_HeartbeatTimeoutStopsBeforeRegistration(t *testing.T) {
	controller, m := newMockController(t)
	m.expectIdentityAndToken()
	m.secrets.On("PutSecret", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.compute.On("Launch", mock.Anything, mock.Anything).Return(&interfaces.ComputeInstance{
		InstanceID: "i-1",
		State:      interfaces.InstancePending,
	}, nil)
	m.poller.On("WaitOnline", mock.Anything, "i-1").Return(interfaces.ErrTimedOut)

	report, err := controller.Reconcile(context.Background(), desiredSet(t, 1))
	require.NoError(t, err)

	result := report.Results["npa-pub"]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, StepWaitOnline, result.Step)
	assert.Equal(t, "timeout", result.Class)

	// Never dispatch a command to an instance that has no heartbeat.
	m.executor.AssertNotCalled(t, "StartRegistration", mock.Anything, mock.Anything, mock.Anything)
	m.poller.AssertExpectations(t)
}

func TestCreateUnit_ConsumedTokenClassifiedForReplacement(t *testing.T) {
	controller, m := newMockController(t)
	m.expectIdentityAndToken()
	m.secrets.On("PutSecret", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.compute.On("Launch", mock.Anything, mock.Anything).Return(&interfaces.ComputeInstance{
		InstanceID: "i-1",
		State:      interfaces.InstancePending,
	}, nil)
	m.poller.On("WaitOnline", mock.Anything, "i-1").Return(nil)
	m.executor.On("StartRegistration", mock.Anything, "i-1", interfaces.SecretPath("npa", "npa-pub")).
		Return("", interfaces.ErrTokenConsumed)

	report, err := controller.Reconcile(context.Background(), desiredSet(t, 1))
	require.NoError(t, err)

	result := report.Results["npa-pub"]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, StepStartRegistration, result.Step)
	assert.Equal(t, "single-use-violation", result.Class)

	m.executor.AssertNotCalled(t, "PollExecution", mock.Anything, mock.Anything, mock.Anything)
	m.executor.AssertExpectations(t)
}

func TestDestroyUnit_DeleteConflictKeepsSecretAndRecord(t *testing.T) {
	controller, m := newMockController(t)
	ctx := context.Background()

	rec := &interfaces.UnitRecord{
		Key:         "npa-pub",
		DisplayName: "npa-pub",
		PublisherID: "pub-1",
		InstanceID:  "i-1",
		SecretPath:  interfaces.SecretPath("npa", "npa-pub"),
		Registered:  true,
	}
	require.NoError(t, controller.cfg.State.Save(ctx, rec))

	m.compute.On("Terminate", mock.Anything, "i-1").Return(nil)
	m.compute.On("WaitTerminated", mock.Anything, "i-1").Return(nil)
	m.tenant.On("DeletePublisher", mock.Anything, "pub-1").Return(interfaces.ErrConflict)

	report, err := controller.Reconcile(ctx, nil)
	require.NoError(t, err)

	result := report.Results["npa-pub"]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, StepDeletePublisher, result.Step)
	assert.Equal(t, "conflict", result.Class)

	// The secret and the record stay until the identity is actually gone.
	m.secrets.AssertNotCalled(t, "DeleteSecret", mock.Anything, mock.Anything)
	state, err := controller.cfg.State.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, state, interfaces.UnitKey("npa-pub"))
	m.compute.AssertExpectations(t)
	m.tenant.AssertExpectations(t)
}
