package orchestrator

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// Step names the pipeline stage at which a unit succeeded or failed. Failure
// reports always carry the step so an operator can resume diagnosis without
// re-running the whole pipeline.
type Step string

const (
	StepCreatePublisher   Step = "create-publisher"
	StepIssueToken        Step = "issue-token"
	StepStoreToken        Step = "store-token"
	StepLaunch            Step = "launch"
	StepWaitOnline        Step = "wait-online"
	StepStartRegistration Step = "start-registration"
	StepPollRegistration  Step = "poll-registration"
	StepConfirmConnected  Step = "confirm-connected"
	StepTerminate         Step = "terminate"
	StepDeletePublisher   Step = "delete-publisher"
	StepDeleteSecret      Step = "delete-secret"
	StepSaveState         Step = "save-state"
)

// Outcome is the terminal state of one unit after a reconcile run. Every
// touched unit resolves to exactly one of these; nothing is left silently
// half connected.
type Outcome string

const (
	OutcomeConnected Outcome = "connected"
	OutcomeFailed    Outcome = "failed"
	OutcomeDestroyed Outcome = "destroyed"
	OutcomeUnchanged Outcome = "unchanged"
)

// UnitResult is the per-key result of a reconcile run.
type UnitResult struct {
	Key     interfaces.UnitKey `json:"key"`
	Outcome Outcome            `json:"outcome"`

	// Step is the stage that failed; empty on success.
	Step Step `json:"step,omitempty"`

	// Err is the failure cause; nil on success.
	Err error `json:"-"`

	// Error mirrors Err for the JSON report.
	Error string `json:"error,omitempty"`

	// Class buckets the failure by remediation.
	Class string `json:"class,omitempty"`

	// Diagnostics carries the remote command's captured output when the
	// failure happened during registration.
	Diagnostics *interfaces.ExecutionResult `json:"diagnostics,omitempty"`
}

func failedResult(key interfaces.UnitKey, step Step, err error, diag *interfaces.ExecutionResult) UnitResult {
	return UnitResult{
		Key:         key,
		Outcome:     OutcomeFailed,
		Step:        step,
		Err:         err,
		Error:       err.Error(),
		Class:       interfaces.Classify(err).String(),
		Diagnostics: diag,
	}
}

// Report aggregates per-key results of one reconcile run.
type Report struct {
	StartedAt  time.Time                         `json:"started_at"`
	FinishedAt time.Time                         `json:"finished_at"`
	Results    map[interfaces.UnitKey]UnitResult `json:"results"`
	Drift      []DriftWarning                    `json:"drift,omitempty"`
}

// Err returns the aggregated failure of the run, or nil if every unit
// succeeded. One unit's failure never aborts the others, so the aggregate is
// assembled after all pipelines finish.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, result := range r.Results {
		if result.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("unit %s at %s: %w", result.Key, result.Step, result.Err))
		}
	}
	return merr.ErrorOrNil()
}

// DriftWarning flags a unit whose external state no longer matches the
// controller's records. Drift is never auto-healed.
type DriftWarning struct {
	Key    interfaces.UnitKey `json:"key"`
	Detail string             `json:"detail"`
}
