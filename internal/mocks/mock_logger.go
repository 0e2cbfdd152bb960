package mocks

import (
	"context"

	"tieredcache/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of logger.Service
type MockLogger struct {
	mock.Mock
}

// LogInfo mocks the LogInfo method of logger.Service
func (m *MockLogger) LogInfo(ctx context.Context, operation, message string, metadata map[string]interface{}) {
	m.Called(ctx, operation, message, metadata)
}

// LogSuccess mocks the LogSuccess method of logger.Service
func (m *MockLogger) LogSuccess(ctx context.Context, operation, cacheKey, message string, metadata map[string]interface{}) {
	m.Called(ctx, operation, cacheKey, message, metadata)
}

// LogError mocks the LogError method of logger.Service
func (m *MockLogger) LogError(ctx context.Context, operation, cacheKey, message string, err error, severity models.LogSeverity, metadata map[string]interface{}) {
	m.Called(ctx, operation, cacheKey, message, err, severity, metadata)
}

// Close mocks the Close method of logger.Service
func (m *MockLogger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDatabaseConnection is a mock implementation of logger.DatabaseConnection
type MockDatabaseConnection struct {
	mock.Mock
}

// InsertLog mocks the InsertLog method of logger.DatabaseConnection
func (m *MockDatabaseConnection) InsertLog(ctx context.Context, entry *models.LogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Close mocks the Close method of logger.DatabaseConnection
func (m *MockDatabaseConnection) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Ping mocks the Ping method of logger.DatabaseConnection
func (m *MockDatabaseConnection) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
