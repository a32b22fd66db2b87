package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSubsystem is the standardized structured logging key for instrument subsystem names.
	FieldSubsystem = "subsystem"
	// FieldCommand is the standardized structured logging key for RPC command names.
	FieldCommand = "command"
	// FieldClient is the standardized structured logging key for client reply addresses.
	FieldClient = "client"
	// FieldQueue is the standardized structured logging key for broker queue names.
	FieldQueue = "queue"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	clientKey
	subsystemKey
)

// WithCorrelationID stores a request correlation identifier on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts a correlation identifier previously stored
// with WithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok && id != ""
}

// WithClient stores the requesting client's reply address on the context.
func WithClient(ctx context.Context, client string) context.Context {
	if client == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext extracts a client reply address previously stored with
// WithClient.
func ClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(clientKey).(string)
	return client, ok && client != ""
}

// WithSubsystem stores the target subsystem name on the context.
func WithSubsystem(ctx context.Context, subsystem string) context.Context {
	if subsystem == "" {
		return ctx
	}
	return context.WithValue(ctx, subsystemKey, subsystem)
}

// SubsystemFromContext extracts a subsystem name previously stored with
// WithSubsystem.
func SubsystemFromContext(ctx context.Context) (string, bool) {
	subsystem, ok := ctx.Value(subsystemKey).(string)
	return subsystem, ok && subsystem != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if subsystem, ok := SubsystemFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSubsystem, subsystem))
	}
	if client, ok := ClientFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldClient, client))
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
