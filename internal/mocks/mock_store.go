package mocks

import (
	"context"
	"encoding/json"
)

// MockStore is a mock implementation of the store served by the HTTP handlers
type MockStore struct {
	MockCache[json.RawMessage]
}

// Purge mocks the Purge method of the store
func (m *MockStore) Purge(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
