package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. cache_write_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDocument is the document path or identifier a record concerns.
	FieldDocument = "document"
	// FieldLayer is the normalized layer ID a record concerns.
	FieldLayer = "layer"
	// FieldLayerName is the human-readable layer name.
	FieldLayerName = "layer_name"
	// FieldContentRef is the content reference (frame blob name) a record concerns.
	FieldContentRef = "content_ref"
	// FieldTime is a timeline frame index.
	FieldTime = "time"
)

type contextKey int

const (
	documentKey contextKey = iota
	layerKey
	sessionIDKey
)

// WithDocument annotates ctx with the document being processed.
func WithDocument(ctx context.Context, document string) context.Context {
	return context.WithValue(ctx, documentKey, document)
}

// WithLayer annotates ctx with the layer being processed.
func WithLayer(ctx context.Context, layer string) context.Context {
	return context.WithValue(ctx, layerKey, layer)
}

// WithSessionID annotates ctx with the diagnostic session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session identifier stored in ctx, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if doc, ok := ctx.Value(documentKey).(string); ok && doc != "" {
		fields = append(fields, slog.String(FieldDocument, doc))
	}
	if layer, ok := ctx.Value(layerKey).(string); ok && layer != "" {
		fields = append(fields, slog.String(FieldLayer, layer))
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
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
	return logger.With(Args(fields...)...)
}
