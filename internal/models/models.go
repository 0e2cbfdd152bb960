package models

import (
	"time"
)

// CacheEntry is a cached value stamped with the time it was written
type CacheEntry[V any] struct {
	Value      V         `json:"value"`
	ModifyDate time.Time `json:"modify_date"`
}

// NewCacheEntry creates an entry stamped at the given time
func NewCacheEntry[V any](value V, now time.Time) CacheEntry[V] {
	return CacheEntry[V]{
		Value:      value,
		ModifyDate: now,
	}
}

// Age returns how long ago the entry was written
func (e CacheEntry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.ModifyDate)
}

// KeyValue pairs a key with its stored entry
type KeyValue[V any] struct {
	Key   string        `json:"key"`
	Entry CacheEntry[V] `json:"entry"`
}

// LogSeverity represents the severity level of a log entry
type LogSeverity string

const (
	LogSeverityLow    LogSeverity = "low"
	LogSeverityMedium LogSeverity = "medium"
	LogSeverityHigh   LogSeverity = "high"
)

// ProcessType represents the type of process that created the log
type ProcessType string

const (
	ProcessTypeRequest  ProcessType = "request"
	ProcessTypeInternal ProcessType = "internal"
)

// LogEvent represents a process-specific logging context
type LogEvent struct {
	ProcessID   string      `json:"process_id"`
	ProcessType ProcessType `json:"process_type"`
	StartTime   time.Time   `json:"start_time"`
	ClientIP    string      `json:"client_ip,omitempty"`
}

// LogEntry represents a structured log entry for database storage
type LogEntry struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Severity    LogSeverity            `json:"severity,omitempty"`
	Message     string                 `json:"message"`
	Operation   string                 `json:"operation"`
	CacheKey    string                 `json:"cache_key,omitempty"`
	ProcessID   string                 `json:"process_id"`
	ProcessType ProcessType            `json:"process_type"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
