package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
)

// Config wires the controller's collaborators. Every client is injected
// explicitly so tests can substitute fakes per component; there is no
// ambient provider state.
type Config struct {
	// App namespaces secret paths for this deployment.
	App string

	Tenant   interfaces.TenantClient
	Secrets  interfaces.SecretStore
	Compute  interfaces.ComputeProvisioner
	Poller   interfaces.ReadinessPoller
	Executor interfaces.RegistrationExecutor
	State    interfaces.StateStore
	Lock     interfaces.PlanLock

	Log *slog.Logger
}

// Controller drives each publisher unit through its lifecycle: tenant
// identity, one-time token, encrypted secret, instance, heartbeat wait,
// remote registration. Units are reconciled concurrently since they address
// disjoint resources; within one unit the steps are strictly sequential.
type Controller struct {
	cfg Config
	log *slog.Logger
}

// New creates a controller after validating that all collaborators are set.
func New(cfg Config) (*Controller, error) {
	if cfg.App == "" {
		return nil, errors.New("app name is required")
	}
	if cfg.Tenant == nil || cfg.Secrets == nil || cfg.Compute == nil ||
		cfg.Poller == nil || cfg.Executor == nil || cfg.State == nil || cfg.Lock == nil {
		return nil, errors.New("all controller dependencies must be set")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cfg: cfg, log: log}, nil
}

// Reconcile drives current state toward the desired unit set. Creating or
// destroying one unit never touches another unit's resources; failures are
// collected per key and never abort sibling pipelines.
func (c *Controller) Reconcile(ctx context.Context, desired []interfaces.PublisherUnit) (*Report, error) {
	if err := c.cfg.Lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.cfg.Lock.Unlock()

	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	current, err := c.cfg.State.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current state: %w", err)
	}

	plan := Diff(current, desired)
	c.log.Info("Computed reconciliation plan",
		slog.Int("create", len(plan.ToCreate)),
		slog.Int("destroy", len(plan.ToDestroy)),
		slog.Int("replace", len(plan.ToReplace)),
		slog.Int("unchanged", len(plan.Unchanged)))

	report := &Report{
		StartedAt: start,
		Results:   make(map[interfaces.UnitKey]UnitResult),
	}
	for _, key := range plan.Unchanged {
		report.Results[key] = UnitResult{Key: key, Outcome: OutcomeUnchanged}
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(result UnitResult) {
		mu.Lock()
		report.Results[result.Key] = result
		mu.Unlock()
		metrics.UnitOutcomes.WithLabelValues(string(result.Outcome), string(result.Step)).Inc()
	}

	for _, unit := range plan.ToCreate {
		wg.Add(1)
		go func(unit interfaces.PublisherUnit) {
			defer wg.Done()
			record(c.createUnit(ctx, unit))
		}(unit)
	}
	for _, rec := range plan.ToDestroy {
		wg.Add(1)
		go func(rec *interfaces.UnitRecord) {
			defer wg.Done()
			record(c.destroyUnit(ctx, rec))
		}(rec)
	}
	for _, pair := range plan.ToReplace {
		wg.Add(1)
		go func(pair ReplacePair) {
			defer wg.Done()
			record(c.replaceUnit(ctx, pair))
		}(pair)
	}
	wg.Wait()

	report.FinishedAt = time.Now()
	return report, nil
}

// ReplaceUnit forces destroy and recreate of one unit's identity, token, and
// instance together. Tokens are single use: replacing only the instance while
// keeping the identity would always fail registration, so the triple is
// always replaced as a whole.
func (c *Controller) ReplaceUnit(ctx context.Context, key interfaces.UnitKey) (*Report, error) {
	if err := c.cfg.Lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.cfg.Lock.Unlock()

	current, err := c.cfg.State.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current state: %w", err)
	}
	rec, ok := current[key]
	if !ok {
		return nil, fmt.Errorf("unit %s: %w", key, interfaces.ErrNotFound)
	}

	report := &Report{
		StartedAt: time.Now(),
		Results:   make(map[interfaces.UnitKey]UnitResult),
	}
	unit := interfaces.PublisherUnit{Key: rec.Key, DisplayName: rec.DisplayName, Ordinal: rec.Ordinal}
	result := c.replaceUnit(ctx, ReplacePair{Unit: unit, Record: rec})
	report.Results[key] = result
	metrics.UnitOutcomes.WithLabelValues(string(result.Outcome), string(result.Step)).Inc()
	report.FinishedAt = time.Now()
	return report, nil
}

// createUnit runs the create pipeline for one unit. Partial progress is
// persisted after each externally visible step so a failed unit can be
// destroyed or replaced later without manual bookkeeping.
func (c *Controller) createUnit(ctx context.Context, unit interfaces.PublisherUnit) UnitResult {
	log := c.log.With(slog.String("key", unit.Key.String()))
	rec := &interfaces.UnitRecord{
		Key:         unit.Key,
		DisplayName: unit.DisplayName,
		Ordinal:     unit.Ordinal,
		SecretPath:  interfaces.SecretPath(c.cfg.App, unit.DisplayName),
	}

	identity, err := c.cfg.Tenant.CreatePublisher(ctx, unit.DisplayName)
	if err != nil {
		return failedResult(unit.Key, StepCreatePublisher, err, nil)
	}
	rec.PublisherID = identity.PublisherID
	if err := c.cfg.State.Save(ctx, rec); err != nil {
		return failedResult(unit.Key, StepSaveState, err, nil)
	}

	token, err := c.cfg.Tenant.IssueToken(ctx, identity.PublisherID)
	if err != nil {
		return failedResult(unit.Key, StepIssueToken, err, nil)
	}

	if err := c.putToken(ctx, rec.SecretPath, token); err != nil {
		return failedResult(unit.Key, StepStoreToken, err, nil)
	}

	instance, err := c.cfg.Compute.Launch(ctx, unit)
	if err != nil {
		return failedResult(unit.Key, StepLaunch, err, nil)
	}
	rec.InstanceID = instance.InstanceID
	if err := c.cfg.State.Save(ctx, rec); err != nil {
		return failedResult(unit.Key, StepSaveState, err, nil)
	}

	if err := c.cfg.Poller.WaitOnline(ctx, instance.InstanceID); err != nil {
		return failedResult(unit.Key, StepWaitOnline, err, nil)
	}

	executionID, err := c.cfg.Executor.StartRegistration(ctx, instance.InstanceID, rec.SecretPath)
	if err != nil {
		return failedResult(unit.Key, StepStartRegistration, err, nil)
	}

	execResult, err := c.cfg.Executor.PollExecution(ctx, executionID, instance.InstanceID)
	if err != nil {
		return failedResult(unit.Key, StepPollRegistration, err, execResult)
	}

	// The token is consumed the instant registration succeeds; record that so
	// any later attempt to reuse it is refused before reaching the instance.
	token.Consumed = true
	if err := c.putToken(ctx, rec.SecretPath, token); err != nil {
		log.Warn("Failed to mark token consumed", "err", err)
	}

	rec.Registered = true
	if err := c.cfg.State.Save(ctx, rec); err != nil {
		return failedResult(unit.Key, StepSaveState, err, nil)
	}

	// Best-effort confirmation against the tenant; its status view can lag
	// the wizard's success by a few seconds.
	if identity, err := c.cfg.Tenant.GetPublisher(ctx, rec.PublisherID); err != nil {
		log.Warn("Could not confirm publisher status", "err", err)
	} else if identity.Status != interfaces.PublisherConnected {
		log.Warn("Publisher registered but not yet connected",
			slog.String("status", string(identity.Status)))
	}

	log.Info("Publisher unit connected",
		slog.String("publisher_id", rec.PublisherID),
		slog.String("instance_id", rec.InstanceID))
	return UnitResult{Key: unit.Key, Outcome: OutcomeConnected, Diagnostics: execResult}
}

// destroyUnit tears one unit down. The instance is terminated strictly
// before the tenant identity is deleted: the tenant refuses to delete an
// identity with a live connection, and that ordering dependency is enforced
// here rather than left to incidental sequencing.
func (c *Controller) destroyUnit(ctx context.Context, rec *interfaces.UnitRecord) UnitResult {
	log := c.log.With(slog.String("key", rec.Key.String()))

	if rec.InstanceID != "" {
		if err := c.cfg.Compute.Terminate(ctx, rec.InstanceID); err != nil {
			// Termination failed: identity deletion must not be attempted.
			return failedResult(rec.Key, StepTerminate, err, nil)
		}
		if err := c.cfg.Compute.WaitTerminated(ctx, rec.InstanceID); err != nil {
			return failedResult(rec.Key, StepTerminate, err, nil)
		}
	}

	if rec.PublisherID != "" {
		if err := c.cfg.Tenant.DeletePublisher(ctx, rec.PublisherID); err != nil {
			return failedResult(rec.Key, StepDeletePublisher, err, nil)
		}
	}

	if rec.SecretPath != "" {
		if err := c.cfg.Secrets.DeleteSecret(ctx, rec.SecretPath); err != nil {
			return failedResult(rec.Key, StepDeleteSecret, err, nil)
		}
	}

	if err := c.cfg.State.Delete(ctx, rec.Key); err != nil {
		return failedResult(rec.Key, StepSaveState, err, nil)
	}

	log.Info("Publisher unit destroyed")
	return UnitResult{Key: rec.Key, Outcome: OutcomeDestroyed}
}

func (c *Controller) replaceUnit(ctx context.Context, pair ReplacePair) UnitResult {
	if result := c.destroyUnit(ctx, pair.Record); result.Outcome == OutcomeFailed {
		return result
	}
	return c.createUnit(ctx, pair.Unit)
}

// putToken stores the token record (value plus consumed flag) encrypted at
// the unit's secret path.
func (c *Controller) putToken(ctx context.Context, path string, token *interfaces.RegistrationToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.cfg.Secrets.PutSecret(ctx, path, string(payload))
}
