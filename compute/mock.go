package compute

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// MockProvisioner mocks the interfaces.ComputeProvisioner interface
type MockProvisioner struct {
	mock.Mock
}

// Launch mocks the Launch method
func (m *MockProvisioner) Launch(ctx context.Context, unit interfaces.PublisherUnit) (*interfaces.ComputeInstance, error) {
	args := m.Called(ctx, unit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ComputeInstance), args.Error(1)
}

// Terminate mocks the Terminate method
func (m *MockProvisioner) Terminate(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// WaitTerminated mocks the WaitTerminated method
func (m *MockProvisioner) WaitTerminated(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// Find mocks the Find method
func (m *MockProvisioner) Find(ctx context.Context, key interfaces.UnitKey) (*interfaces.ComputeInstance, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ComputeInstance), args.Error(1)
}
