package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"tieredcache/internal/models"

	"github.com/google/uuid"
)

// DatabaseLogger implements the Service interface using a database backend
type DatabaseLogger struct {
	db      DatabaseConnection
	pending sync.WaitGroup
}

// NewDatabaseLogger creates a new database logger
func NewDatabaseLogger(db DatabaseConnection) *DatabaseLogger {
	return &DatabaseLogger{
		db: db,
	}
}

// LogInfo logs an informational message (no severity)
func (l *DatabaseLogger) LogInfo(ctx context.Context, operation, message string, metadata map[string]interface{}) {
	l.logEntry(ctx, "", operation, "", message, nil, metadata)
}

// LogSuccess logs a successful cache operation (no severity)
func (l *DatabaseLogger) LogSuccess(ctx context.Context, operation, cacheKey, message string, metadata map[string]interface{}) {
	l.logEntry(ctx, "", operation, cacheKey, message, nil, metadata)
}

// LogError logs an error with required severity
func (l *DatabaseLogger) LogError(ctx context.Context, operation, cacheKey, message string, err error, severity models.LogSeverity, metadata map[string]interface{}) {
	l.logEntry(ctx, severity, operation, cacheKey, message, err, metadata)
}

func (l *DatabaseLogger) logEntry(ctx context.Context, severity models.LogSeverity, operation, cacheKey, message string, err error, metadata map[string]interface{}) {
	logEvent := GetLogEvent(ctx)

	entry := &models.LogEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Severity:    severity,
		Message:     message,
		Operation:   operation,
		CacheKey:    cacheKey,
		ProcessID:   logEvent.ProcessID,
		ProcessType: logEvent.ProcessType,
		ClientIP:    logEvent.ClientIP,
		Metadata:    metadata,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	// Insert asynchronously so cache reads never wait on the log table
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()

		logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.db.InsertLog(logCtx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to insert log entry: %v\n", err)
		}
	}()
}

// Close waits for in-flight inserts and closes the database connection
func (l *DatabaseLogger) Close() error {
	l.pending.Wait()
	return l.db.Close()
}

// Operations recorded by the cache and its HTTP surface
const (
	OpCacheHit       = "cache_hit"
	OpCacheMiss      = "cache_miss"
	OpCacheExpired   = "cache_expired"
	OpCacheEvict     = "cache_evict"
	OpCacheSet       = "cache_set"
	OpCacheDelete    = "cache_delete"
	OpCacheClear     = "cache_clear"
	OpCachePurge     = "cache_purge"
	OpNetworkFetch   = "network_fetch"
	OpRateLimited    = "rate_limited"
	OpServerStart    = "server_start"
	OpServerShutdown = "server_shutdown"
	OpHealthCheck    = "health_check"
)
