package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls one attribute out of a record context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

type dispatchIDKey struct{}

// WithDispatchID returns a context carrying the id of the dispatch it belongs to.
func WithDispatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, dispatchIDKey{}, id)
}

// DispatchIDFromContext returns the dispatch id stored by WithDispatchID.
func DispatchIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(dispatchIDKey{}).(string)
	return id, ok && id != ""
}

// DispatchIDExtractor adds "dispatch_id" to records logged with a context
// carrying one. New registers it by default.
func DispatchIDExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := DispatchIDFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return DispatchID(id), true
	}
}

// contextHandler runs the extractors on every record, so values that change
// per dispatch or per request are never cached in the handler.
type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx != nil {
		for _, ex := range h.extractors {
			if attr, ok := ex(ctx); ok {
				rec.AddAttrs(attr)
			}
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}
