package remotecmd

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// MockPoller mocks the interfaces.ReadinessPoller interface
type MockPoller struct {
	mock.Mock
}

// WaitOnline mocks the WaitOnline method
func (m *MockPoller) WaitOnline(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockExecutor mocks the interfaces.RegistrationExecutor interface
type MockExecutor struct {
	mock.Mock
}

// StartRegistration mocks the StartRegistration method
func (m *MockExecutor) StartRegistration(ctx context.Context, instanceID, tokenRef string) (string, error) {
	args := m.Called(ctx, instanceID, tokenRef)
	return args.String(0), args.Error(1)
}

// PollExecution mocks the PollExecution method
func (m *MockExecutor) PollExecution(ctx context.Context, executionID, instanceID string) (*interfaces.ExecutionResult, error) {
	args := m.Called(ctx, executionID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ExecutionResult), args.Error(1)
}
