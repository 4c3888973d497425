package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// harness wires the controller to in-memory fakes that share one ordered
// event log, so tests can assert cross-component sequencing such as
// "terminate strictly before delete-publisher".
type harness struct {
	mu     sync.Mutex
	events []string

	tenant   *fakeTenant
	secrets  *fakeSecrets
	compute  *fakeCompute
	poller   *fakePoller
	executor *fakeExecutor

	controller *Controller
}

func (h *harness) logEvent(format string, args ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *harness) eventsFor(key string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		if len(e) > len(key) && e[len(e)-len(key):] == key {
			out = append(out, e)
		}
	}
	return out
}

type fakeTenant struct {
	h *harness

	mu         sync.Mutex
	nextID     int
	publishers map[string]*interfaces.PublisherIdentity
	created    int
	deleted    int
	deleteErr  error
}

func (f *fakeTenant) CreatePublisher(ctx context.Context, name string) (*interfaces.PublisherIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.publishers {
		if p.Name == name {
			return nil, fmt.Errorf("create %s: %w", name, interfaces.ErrDuplicateName)
		}
	}
	f.nextID++
	f.created++
	id := fmt.Sprintf("pubid-%d", f.nextID)
	identity := &interfaces.PublisherIdentity{PublisherID: id, Name: name, Status: interfaces.PublisherPending}
	f.publishers[id] = identity
	f.h.logEvent("create-publisher %s", name)
	return identity, nil
}

func (f *fakeTenant) GetPublisher(ctx context.Context, publisherID string) (*interfaces.PublisherIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.publishers[publisherID]
	if !ok {
		return nil, fmt.Errorf("publisher %s: %w", publisherID, interfaces.ErrNotFound)
	}
	return identity, nil
}

func (f *fakeTenant) IssueToken(ctx context.Context, publisherID string) (*interfaces.RegistrationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.publishers[publisherID]; !ok {
		return nil, fmt.Errorf("publisher %s: %w", publisherID, interfaces.ErrNotFound)
	}
	return &interfaces.RegistrationToken{
		PublisherID: publisherID,
		Value:       "token-for-" + publisherID,
	}, nil
}

func (f *fakeTenant) DeletePublisher(ctx context.Context, publisherID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	name := publisherID
	if p, ok := f.publishers[publisherID]; ok {
		name = p.Name
	}
	delete(f.publishers, publisherID)
	f.deleted++
	f.h.logEvent("delete-publisher %s", name)
	return nil
}

type fakeSecrets struct {
	h *harness

	mu     sync.Mutex
	values map[string]string
}

func (f *fakeSecrets) PutSecret(ctx context.Context, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[path] = value
	return nil
}

func (f *fakeSecrets) GetSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[path]
	if !ok {
		return "", fmt.Errorf("secret %s: %w", path, interfaces.ErrNotFound)
	}
	if !decrypt {
		// Existence probe only, mirroring the real backends.
		return "", nil
	}
	return value, nil
}

func (f *fakeSecrets) DeleteSecret(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, path)
	f.h.logEvent("delete-secret %s", path)
	return nil
}

func (f *fakeSecrets) Name() string { return "fake" }

func (f *fakeSecrets) token(t *testing.T, path string) interfaces.RegistrationToken {
	t.Helper()
	value, err := f.GetSecret(context.Background(), path, true)
	require.NoError(t, err)
	var token interfaces.RegistrationToken
	require.NoError(t, json.Unmarshal([]byte(value), &token))
	return token
}

type fakeCompute struct {
	h *harness

	mu           sync.Mutex
	nextID       int
	instances    map[interfaces.UnitKey]string
	launched     int
	terminated   int
	terminateErr error
}

func (f *fakeCompute) Launch(ctx context.Context, unit interfaces.PublisherUnit) (*interfaces.ComputeInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.launched++
	id := fmt.Sprintf("i-%04d", f.nextID)
	f.instances[unit.Key] = id
	f.h.logEvent("launch %s", unit.Key)
	return &interfaces.ComputeInstance{InstanceID: id, State: interfaces.InstancePending}, nil
}

func (f *fakeCompute) Terminate(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminateErr != nil {
		return f.terminateErr
	}
	for key, id := range f.instances {
		if id == instanceID {
			delete(f.instances, key)
			f.h.logEvent("terminate %s", key)
		}
	}
	f.terminated++
	return nil
}

func (f *fakeCompute) WaitTerminated(ctx context.Context, instanceID string) error {
	return nil
}

func (f *fakeCompute) Find(ctx context.Context, key interfaces.UnitKey) (*interfaces.ComputeInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.instances[key]
	if !ok {
		return nil, fmt.Errorf("instance for %s: %w", key, interfaces.ErrNotFound)
	}
	return &interfaces.ComputeInstance{InstanceID: id, State: interfaces.InstanceRunning}, nil
}

type fakePoller struct {
	h *harness

	mu          sync.Mutex
	timedOut    map[string]bool // instanceID -> never comes online
	invocations int
}

func (f *fakePoller) WaitOnline(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations++
	if f.timedOut[instanceID] {
		return fmt.Errorf("no heartbeat from %s: %w", instanceID, interfaces.ErrTimedOut)
	}
	return nil
}

type fakeExecutor struct {
	h       *harness
	secrets *fakeSecrets
	tenant  *fakeTenant

	mu       sync.Mutex
	started  int
	failWith error
}

func (f *fakeExecutor) StartRegistration(ctx context.Context, instanceID, tokenRef string) (string, error) {
	value, err := f.secrets.GetSecret(ctx, tokenRef, true)
	if err != nil {
		return "", err
	}
	var token interfaces.RegistrationToken
	if err := json.Unmarshal([]byte(value), &token); err != nil {
		return "", err
	}
	if token.Consumed {
		return "", fmt.Errorf("token for %s: %w", token.PublisherID, interfaces.ErrTokenConsumed)
	}

	f.mu.Lock()
	f.started++
	execID := fmt.Sprintf("cmd-%04d", f.started)
	f.mu.Unlock()

	// Successful registration flips the tenant-side status.
	f.tenant.mu.Lock()
	if identity, ok := f.tenant.publishers[token.PublisherID]; ok {
		identity.Status = interfaces.PublisherConnected
	}
	f.tenant.mu.Unlock()

	return execID, nil
}

func (f *fakeExecutor) PollExecution(ctx context.Context, executionID, instanceID string) (*interfaces.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return &interfaces.ExecutionResult{
			Status: interfaces.ExecutionFailed,
			Stderr: f.failWith.Error(),
		}, f.failWith
	}
	return &interfaces.ExecutionResult{Status: interfaces.ExecutionSuccess, Stdout: "registered"}, nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.tenant = &fakeTenant{h: h, publishers: make(map[string]*interfaces.PublisherIdentity)}
	h.secrets = &fakeSecrets{h: h, values: make(map[string]string)}
	h.compute = &fakeCompute{h: h, instances: make(map[interfaces.UnitKey]string)}
	h.poller = &fakePoller{h: h, timedOut: make(map[string]bool)}
	h.executor = &fakeExecutor{h: h, secrets: h.secrets, tenant: h.tenant}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	state, err := NewFileStateStore(filepath.Join(dir, "state.json"), log)
	require.NoError(t, err)

	controller, err := New(Config{
		App:      "npa",
		Tenant:   h.tenant,
		Secrets:  h.secrets,
		Compute:  h.compute,
		Poller:   h.poller,
		Executor: h.executor,
		State:    state,
		Lock:     NewFlockPlanLock(filepath.Join(dir, "plan.lock"), 0, log),
		Log:      log,
	})
	require.NoError(t, err)
	h.controller = controller
	return h
}

func desiredSet(t *testing.T, count int) []interfaces.PublisherUnit {
	t.Helper()
	units, err := interfaces.DesiredUnits("npa-pub", count)
	require.NoError(t, err)
	return units
}
