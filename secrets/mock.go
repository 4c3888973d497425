package secrets

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore mocks the interfaces.SecretStore interface
type MockStore struct {
	mock.Mock
}

// PutSecret mocks the PutSecret method
func (m *MockStore) PutSecret(ctx context.Context, path, value string) error {
	args := m.Called(ctx, path, value)
	return args.Error(0)
}

// GetSecret mocks the GetSecret method
func (m *MockStore) GetSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	args := m.Called(ctx, path, decrypt)
	return args.String(0), args.Error(1)
}

// DeleteSecret mocks the DeleteSecret method
func (m *MockStore) DeleteSecret(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

// Name mocks the Name method
func (m *MockStore) Name() string {
	args := m.Called()
	return args.String(0)
}
