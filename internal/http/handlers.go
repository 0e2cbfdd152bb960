package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"tieredcache/internal/cache"
	"tieredcache/internal/logger"
	"tieredcache/internal/models"

	"github.com/gorilla/mux"
)

const maxValueSize = 1024 * 1024

// Store is the cache served over HTTP
type Store interface {
	cache.Service[json.RawMessage]
	Purge(ctx context.Context) (int, error)
}

// Handler contains the HTTP handlers for the API
type Handler struct {
	store  Store
	logger logger.Service
}

// NewHandler creates a new HTTP handler
func NewHandler(store Store, logger logger.Service) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// EntryResponse is the wire form of a single entry; network tiers decode its "value" field
type EntryResponse struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	ModifyDate time.Time       `json:"modify_date"`
}

// KeyInfo describes one listed key
type KeyInfo struct {
	Key        string    `json:"key"`
	ModifyDate time.Time `json:"modify_date"`
}

// ListResponse represents GET /api/cache
type ListResponse struct {
	Keys  []KeyInfo `json:"keys"`
	Count int       `json:"count"`
}

// PurgeResponse represents POST /api/cache/purge
type PurgeResponse struct {
	Removed int `json:"removed"`
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) error {
	logEvent := logger.GetLogEvent(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", logEvent.ProcessID)
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(data)
}

// GetEntry handles GET /api/cache/{key}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromRequest(w, r)
	if !ok {
		return
	}

	entry, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.writeCacheError(w, r, key, "lookup failed", err)
		return
	}

	h.respond(w, r, http.StatusOK, EntryResponse{
		Key:        key,
		Value:      entry.Value,
		ModifyDate: entry.ModifyDate,
	})
}

// PutEntry handles PUT /api/cache/{key}; the body is the raw JSON value
func (h *Handler) PutEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromRequest(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body) > maxValueSize {
		h.writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, "value too large", "Maximum 1MB per value")
		return
	}
	if !json.Valid(body) {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid request body", "value must be valid JSON")
		return
	}

	if err := h.store.Set(r.Context(), key, json.RawMessage(body)); err != nil {
		h.writeCacheError(w, r, key, "write failed", err)
		return
	}

	w.Header().Set("X-Request-ID", logger.GetLogEvent(r.Context()).ProcessID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntry handles DELETE /api/cache/{key}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		h.writeCacheError(w, r, key, "delete failed", err)
		return
	}

	w.Header().Set("X-Request-ID", logger.GetLogEvent(r.Context()).ProcessID)
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /api/cache
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	kvs, err := h.store.KeyValues(r.Context())
	if err != nil {
		h.writeCacheError(w, r, "", "list failed", err)
		return
	}

	keys := make([]KeyInfo, 0, len(kvs))
	for _, kv := range kvs {
		keys = append(keys, KeyInfo{Key: kv.Key, ModifyDate: kv.Entry.ModifyDate})
	}

	h.respond(w, r, http.StatusOK, ListResponse{Keys: keys, Count: len(keys)})
}

// ClearEntries handles DELETE /api/cache
func (h *Handler) ClearEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.writeCacheError(w, r, "", "clear failed", err)
		return
	}

	w.Header().Set("X-Request-ID", logger.GetLogEvent(r.Context()).ProcessID)
	w.WriteHeader(http.StatusNoContent)
}

// PurgeExpired handles POST /api/cache/purge
func (h *Handler) PurgeExpired(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Purge(r.Context())
	if err != nil {
		h.writeCacheError(w, r, "", "purge failed", err)
		return
	}

	h.respond(w, r, http.StatusOK, PurgeResponse{Removed: removed})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
	}

	if err := h.writeJSONResponse(w, r, http.StatusOK, response); err != nil {
		h.logger.LogError(r.Context(), logger.OpHealthCheck, "", "Failed to encode health response", err, models.LogSeverityLow, nil)
		return
	}
	h.logger.LogInfo(r.Context(), logger.OpHealthCheck, "Health check performed successfully", nil)
}

// keyFromRequest decodes the {key} route variable; keys may contain escaped slashes
func (h *Handler) keyFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil || key == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid key", "key must be a non-empty path segment")
		return "", false
	}
	return key, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	if err := h.writeJSONResponse(w, r, statusCode, data); err != nil {
		// Status already sent; only the encoding failure can be recorded
		h.logger.LogError(r.Context(), "response_encoding", "", "Failed to encode response", err, models.LogSeverityLow, nil)
	}
}

func (h *Handler) writeCacheError(w http.ResponseWriter, r *http.Request, key, message string, err error) {
	statusCode := getStatusCodeForError(err)
	if statusCode >= http.StatusInternalServerError {
		h.logger.LogError(r.Context(), "http_cache_error", key, message, err, models.LogSeverityMedium, nil)
	}
	h.writeErrorResponse(w, r, statusCode, message, err.Error())
}

// writeErrorResponse writes a standardized error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, error, message string) {
	h.respond(w, r, statusCode, ErrorResponse{
		Error:     error,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// getStatusCodeForError maps the cache error taxonomy onto HTTP statuses
func getStatusCodeForError(err error) int {
	var transportErr *models.TransportError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExpired):
		return http.StatusGone
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
