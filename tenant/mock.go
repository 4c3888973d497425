package tenant

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// MockClient mocks the interfaces.TenantClient interface
type MockClient struct {
	mock.Mock
}

// CreatePublisher mocks the CreatePublisher method
func (m *MockClient) CreatePublisher(ctx context.Context, name string) (*interfaces.PublisherIdentity, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PublisherIdentity), args.Error(1)
}

// GetPublisher mocks the GetPublisher method
func (m *MockClient) GetPublisher(ctx context.Context, publisherID string) (*interfaces.PublisherIdentity, error) {
	args := m.Called(ctx, publisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PublisherIdentity), args.Error(1)
}

// IssueToken mocks the IssueToken method
func (m *MockClient) IssueToken(ctx context.Context, publisherID string) (*interfaces.RegistrationToken, error) {
	args := m.Called(ctx, publisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.RegistrationToken), args.Error(1)
}

// DeletePublisher mocks the DeletePublisher method
func (m *MockClient) DeletePublisher(ctx context.Context, publisherID string) error {
	args := m.Called(ctx, publisherID)
	return args.Error(0)
}
