package remotecmd

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/secrets"
)

type fakeSSMCommands struct {
	ssmiface.SSMAPI

	sentCommands []string
	sentParams   []map[string][]*string

	// statusSequence is returned by successive GetCommandInvocation calls;
	// the last entry repeats.
	statusSequence []string
	stderr         string
	pollCalls      int

	// notFoundFirst makes the first poll fail with InvocationDoesNotExist,
	// mimicking eventual consistency right after SendCommand.
	notFoundFirst bool
}

func (f *fakeSSMCommands) SendCommandWithContext(ctx aws.Context, in *ssm.SendCommandInput, _ ...request.Option) (*ssm.SendCommandOutput, error) {
	f.sentParams = append(f.sentParams, in.Parameters)
	for _, cmd := range in.Parameters["commands"] {
		f.sentCommands = append(f.sentCommands, aws.StringValue(cmd))
	}
	return &ssm.SendCommandOutput{
		Command: &ssm.Command{CommandId: aws.String("cmd-0001")},
	}, nil
}

func (f *fakeSSMCommands) GetCommandInvocationWithContext(ctx aws.Context, in *ssm.GetCommandInvocationInput, _ ...request.Option) (*ssm.GetCommandInvocationOutput, error) {
	f.pollCalls++
	if f.notFoundFirst && f.pollCalls == 1 {
		return nil, awserr.New(ssm.ErrCodeInvocationDoesNotExist, "invocation does not exist", nil)
	}

	idx := f.pollCalls - 1
	if f.notFoundFirst {
		idx--
	}
	if idx >= len(f.statusSequence) {
		idx = len(f.statusSequence) - 1
	}
	return &ssm.GetCommandInvocationOutput{
		Status:                 aws.String(f.statusSequence[idx]),
		StandardOutputContent:  aws.String("wizard output"),
		StandardErrorContent:   aws.String(f.stderr),
	}, nil
}

func storeWithToken(t *testing.T, tokenRef string, token interfaces.RegistrationToken) interfaces.SecretStore {
	t.Helper()
	store, err := secrets.NewFileStore(t.TempDir(), discardLogger())
	require.NoError(t, err)

	payload, err := json.Marshal(token)
	require.NoError(t, err)
	require.NoError(t, store.PutSecret(context.Background(), tokenRef, string(payload)))
	return store
}

func testExecutor(client ssmiface.SSMAPI, store interfaces.SecretStore) *Executor {
	return NewExecutor(client, store, ExecutorConfig{
		PollInterval: time.Millisecond,
		MaxAttempts:  10,
		Log:          discardLogger(),
	})
}

func TestStartRegistration_DeliversTokenAsCommandArgument(t *testing.T) {
	tokenRef := interfaces.SecretPath("npa", "npa-pub")
	store := storeWithToken(t, tokenRef, interfaces.RegistrationToken{
		PublisherID: "pub-1",
		Value:       "one-time-secret",
	})
	fake := &fakeSSMCommands{statusSequence: []string{ssm.CommandInvocationStatusSuccess}}
	executor := testExecutor(fake, store)

	executionID, err := executor.StartRegistration(context.Background(), "i-1", tokenRef)
	require.NoError(t, err)
	assert.Equal(t, "cmd-0001", executionID)

	require.Len(t, fake.sentCommands, 1)
	assert.Contains(t, fake.sentCommands[0], "one-time-secret")
	assert.Contains(t, fake.sentCommands[0], "npa_publisher_wizard")
}

func TestStartRegistration_EscapesQuotesInToken(t *testing.T) {
	tokenRef := interfaces.SecretPath("npa", "npa-pub")
	store := storeWithToken(t, tokenRef, interfaces.RegistrationToken{
		PublisherID: "pub-1",
		Value:       "abc'; rm -rf / #",
	})
	fake := &fakeSSMCommands{statusSequence: []string{ssm.CommandInvocationStatusSuccess}}
	executor := testExecutor(fake, store)

	_, err := executor.StartRegistration(context.Background(), "i-1", tokenRef)
	require.NoError(t, err)

	require.Len(t, fake.sentCommands, 1)
	// The quote in the token must not terminate the single-quoted argument.
	assert.NotContains(t, fake.sentCommands[0], "'abc';")
	assert.Contains(t, fake.sentCommands[0], `abc'\''; rm -rf / #`)
}

func TestStartRegistration_RefusesConsumedToken(t *testing.T) {
	tokenRef := interfaces.SecretPath("npa", "npa-pub")
	store := storeWithToken(t, tokenRef, interfaces.RegistrationToken{
		PublisherID: "pub-1",
		Value:       "spent-secret",
		Consumed:    true,
	})
	fake := &fakeSSMCommands{}
	executor := testExecutor(fake, store)

	_, err := executor.StartRegistration(context.Background(), "i-1", tokenRef)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTokenConsumed)
	assert.Equal(t, interfaces.ClassSingleUse, interfaces.Classify(err))
	// Nothing must reach the instance.
	assert.Empty(t, fake.sentCommands)
}

func TestPollExecution_Success(t *testing.T) {
	fake := &fakeSSMCommands{
		statusSequence: []string{
			ssm.CommandInvocationStatusPending,
			ssm.CommandInvocationStatusInProgress,
			ssm.CommandInvocationStatusSuccess,
		},
		notFoundFirst: true,
	}
	executor := testExecutor(fake, nil)

	result, err := executor.PollExecution(context.Background(), "cmd-0001", "i-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExecutionSuccess, result.Status)
	assert.Equal(t, "wizard output", result.Stdout)
}

func TestPollExecution_FailureCarriesStderr(t *testing.T) {
	fake := &fakeSSMCommands{
		statusSequence: []string{ssm.CommandInvocationStatusFailed},
		stderr:         "publisher wizard: cannot reach tenant",
	}
	executor := testExecutor(fake, nil)

	result, err := executor.PollExecution(context.Background(), "cmd-0001", "i-1")
	require.Error(t, err)
	assert.Equal(t, interfaces.ExecutionFailed, result.Status)
	assert.Equal(t, "publisher wizard: cannot reach tenant", result.Stderr)
	assert.Contains(t, err.Error(), "cannot reach tenant")
}

func TestPollExecution_ConsumedTokenDetectedFromStderr(t *testing.T) {
	fake := &fakeSSMCommands{
		statusSequence: []string{ssm.CommandInvocationStatusFailed},
		stderr:         "error: token has already been used",
	}
	executor := testExecutor(fake, nil)

	result, err := executor.PollExecution(context.Background(), "cmd-0001", "i-1")
	require.Error(t, err)
	assert.Equal(t, interfaces.ExecutionFailed, result.Status)
	assert.ErrorIs(t, err, interfaces.ErrTokenConsumed)
}

func TestPollExecution_TimesOut(t *testing.T) {
	fake := &fakeSSMCommands{
		statusSequence: []string{ssm.CommandInvocationStatusInProgress},
	}
	executor := testExecutor(fake, nil)

	result, err := executor.PollExecution(context.Background(), "cmd-0001", "i-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTimedOut)
	assert.Equal(t, interfaces.ExecutionTimedOut, result.Status)
	assert.Equal(t, 10, fake.pollCalls)
}
