package remotecmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/benbjohnson/clock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
)

const (
	// DefaultCommandInterval and DefaultCommandAttempts bound the wait for
	// the registration command: 10s x 60 keeps the same 10-minute ceiling as
	// the heartbeat wait.
	DefaultCommandInterval = 10 * time.Second
	DefaultCommandAttempts = 60

	// DefaultRegistrationCommand enrolls the publisher agent; the token is
	// substituted as the single argument.
	DefaultRegistrationCommand = "/opt/npa_publisher/npa_publisher_wizard -token '%s'"

	runShellScriptDocument = "AWS-RunShellScript"
)

// tokenConsumedMarkers are stderr fragments the publisher wizard emits when
// a one-time token was already used. They distinguish a single-use violation
// from a generic registration failure, because the remediation differs: fresh
// identity and token instead of a plain retry.
var tokenConsumedMarkers = []string{
	"token has already been used",
	"token already consumed",
	"already registered with this token",
}

// ExecutorConfig configures the registration executor.
type ExecutorConfig struct {
	// RegistrationCommand is a format string receiving the plaintext token.
	RegistrationCommand string

	PollInterval time.Duration
	MaxAttempts  int

	Clock clock.Clock
	Log   *slog.Logger
}

// Executor runs the publisher registration command on target instances.
//
// Token delivery is strictly server-side: the executor resolves and decrypts
// the token from the secret store under its own identity, then passes it as
// an argument of a single remote command over the authenticated SSM channel.
// The plaintext token is never placed in instance user data, metadata, or any
// instance-readable secret path.
type Executor struct {
	client ssmiface.SSMAPI
	store  interfaces.SecretStore
	cfg    ExecutorConfig
	clk    clock.Clock
	log    *slog.Logger
}

// NewExecutor creates a registration executor backed by the given remote
// execution client and secret store.
func NewExecutor(client ssmiface.SSMAPI, store interfaces.SecretStore, cfg ExecutorConfig) *Executor {
	if cfg.RegistrationCommand == "" {
		cfg.RegistrationCommand = DefaultRegistrationCommand
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultCommandInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultCommandAttempts
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Executor{client: client, store: store, cfg: cfg, clk: clk, log: log}
}

// StartRegistration resolves the token at tokenRef and dispatches exactly one
// registration command to the instance. Returns the execution id for
// PollExecution. A token already marked consumed fails with ErrTokenConsumed
// before anything is sent to the instance.
func (e *Executor) StartRegistration(ctx context.Context, instanceID, tokenRef string) (string, error) {
	secretValue, err := e.store.GetSecret(ctx, tokenRef, true)
	if err != nil {
		return "", fmt.Errorf("failed to resolve registration token %s: %w", tokenRef, err)
	}

	var token interfaces.RegistrationToken
	if err := json.Unmarshal([]byte(secretValue), &token); err != nil {
		return "", fmt.Errorf("malformed registration token at %s: %w", tokenRef, err)
	}
	if token.Consumed {
		return "", fmt.Errorf("token at %s for publisher %s: %w",
			tokenRef, token.PublisherID, interfaces.ErrTokenConsumed)
	}

	// The token lands inside single quotes in the shell command, so any quote
	// in the value has to be closed, escaped, and reopened.
	command := fmt.Sprintf(e.cfg.RegistrationCommand, shellSingleQuoteEscape(token.Value))

	result, err := e.client.SendCommandWithContext(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String(runShellScriptDocument),
		InstanceIds:  []*string{aws.String(instanceID)},
		Comment:      aws.String("publisher registration"),
		Parameters: map[string][]*string{
			"commands": {aws.String(command)},
		},
		TimeoutSeconds: aws.Int64(600),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send registration command to %s: %w", instanceID, err)
	}

	executionID := aws.StringValue(result.Command.CommandId)
	e.log.Info("Dispatched registration command",
		slog.String("instance_id", instanceID),
		slog.String("execution_id", executionID))
	return executionID, nil
}

// PollExecution blocks until the execution reaches a terminal status or the
// attempt ceiling is hit. The returned result always carries captured
// stdout/stderr; err is nil only on Success.
func (e *Executor) PollExecution(ctx context.Context, executionID, instanceID string) (*interfaces.ExecutionResult, error) {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		metrics.PollAttempts.WithLabelValues("command").Inc()

		invocation, err := e.client.GetCommandInvocationWithContext(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(executionID),
			InstanceId: aws.String(instanceID),
		})
		if err != nil {
			// The invocation is not immediately describable after SendCommand.
			if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != ssm.ErrCodeInvocationDoesNotExist {
				return nil, fmt.Errorf("failed to poll execution %s: %w", executionID, err)
			}
		} else {
			result := &interfaces.ExecutionResult{
				Status: mapInvocationStatus(aws.StringValue(invocation.Status)),
				Stdout: aws.StringValue(invocation.StandardOutputContent),
				Stderr: aws.StringValue(invocation.StandardErrorContent),
			}
			if result.Status.Terminal() {
				return result, e.terminalError(executionID, result)
			}
		}

		if attempt == e.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.clk.After(e.cfg.PollInterval):
		}
	}

	return &interfaces.ExecutionResult{Status: interfaces.ExecutionTimedOut},
		fmt.Errorf("execution %s still running after %d attempts: %w",
			executionID, e.cfg.MaxAttempts, interfaces.ErrTimedOut)
}

// shellSingleQuoteEscape makes a value safe for interpolation inside a
// single-quoted shell argument.
func shellSingleQuoteEscape(value string) string {
	return strings.ReplaceAll(value, "'", `'\''`)
}

// terminalError maps a terminal result to the error the controller reports.
func (e *Executor) terminalError(executionID string, result *interfaces.ExecutionResult) error {
	switch result.Status {
	case interfaces.ExecutionSuccess:
		e.log.Info("Registration command succeeded", slog.String("execution_id", executionID))
		return nil
	case interfaces.ExecutionTimedOut:
		return fmt.Errorf("execution %s: %w", executionID, interfaces.ErrTimedOut)
	}

	stderr := strings.ToLower(result.Stderr)
	for _, marker := range tokenConsumedMarkers {
		if strings.Contains(stderr, marker) {
			return fmt.Errorf("execution %s: %w", executionID, interfaces.ErrTokenConsumed)
		}
	}
	return fmt.Errorf("execution %s finished %s: stderr: %s",
		executionID, result.Status, strings.TrimSpace(result.Stderr))
}

func mapInvocationStatus(status string) interfaces.ExecutionStatus {
	switch status {
	case ssm.CommandInvocationStatusSuccess:
		return interfaces.ExecutionSuccess
	case ssm.CommandInvocationStatusFailed:
		return interfaces.ExecutionFailed
	case ssm.CommandInvocationStatusCancelled:
		return interfaces.ExecutionCancelled
	case ssm.CommandInvocationStatusTimedOut:
		return interfaces.ExecutionTimedOut
	default:
		return interfaces.ExecutionInProgress
	}
}
