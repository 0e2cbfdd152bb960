package mocks

import (
	"context"

	"tieredcache/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of cache.Service
type MockCache[V any] struct {
	mock.Mock
}

// Get mocks the Get method of cache.Service
func (m *MockCache[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	args := m.Called(ctx, key)
	entry, _ := args.Get(0).(models.CacheEntry[V])
	return entry, args.Error(1)
}

// Set mocks the Set method of cache.Service
func (m *MockCache[V]) Set(ctx context.Context, key string, value V) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Delete mocks the Delete method of cache.Service
func (m *MockCache[V]) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Clear mocks the Clear method of cache.Service
func (m *MockCache[V]) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// KeyValues mocks the KeyValues method of cache.Service
func (m *MockCache[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	args := m.Called(ctx)
	kvs, _ := args.Get(0).([]models.KeyValue[V])
	return kvs, args.Error(1)
}
