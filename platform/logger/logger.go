// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// AgentIDKey is the context key for the acting agent ID
	AgentIDKey contextKey = "agent_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and agent_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if agentID, ok := ctx.Value(AgentIDKey).(string); ok && agentID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("agent_id", agentID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// ConversationEvent logs a conversation lifecycle action (claim, resolve, reopen, send).
func (l *Logger) ConversationEvent(action, conversationID, agentID, oldStatus, newStatus string) {
	l.Info("conversation_event",
		slog.String("action", action),
		slog.String("conversation_id", conversationID),
		slog.String("agent_id", agentID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)
}

// WindowCheck logs the outcome of a 24h window evaluation.
func (l *Logger) WindowCheck(conversationID, lastInbound string, hours float64, outside bool) {
	l.Info("window_check",
		slog.String("conversation_id", conversationID),
		slog.String("last_inbound", lastInbound),
		slog.Float64("hours_since_inbound", hours),
		slog.Bool("outside", outside),
	)
}

// ProviderError logs a messaging provider failure.
func (l *Logger) ProviderError(operation, conversationID, code, message string) {
	l.Error("provider_error",
		slog.String("operation", operation),
		slog.String("conversation_id", conversationID),
		slog.String("code", code),
		slog.String("message", message),
	)
}

// AuthEvent logs authentication events
func (l *Logger) AuthEvent(event, agentID string, success bool, reason string) {
	if success {
		l.Info("auth_event",
			slog.String("event", event),
			slog.String("agent_id", agentID),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("auth_event",
			slog.String("event", event),
			slog.String("agent_id", agentID),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(key, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("key", key),
		slog.String("path", path),
	)
}
