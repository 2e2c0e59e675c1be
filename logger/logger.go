// Package logger carries request-scoped slog attributes on the context, so
// anything logged while handling a request picks up attributes (like the
// owner id) attached by middleware earlier in the chain.
package logger

import (
	"context"
	"log/slog"
)

type attrKey struct{}

// ContextHandler decorates a base [slog.Handler], folding any attributes
// stashed on the context by [Ctx] into each record before delegating.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(base slog.Handler) ContextHandler {
	return ContextHandler{Handler: base}
}

func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs, ok := ctx.Value(attrKey{}).([]slog.Attr); ok {
		record.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, record)
}

// Ctx returns a context carrying the given attributes in addition to any
// already present. The attributes surface on every record logged through a
// [ContextHandler] with this context.
func Ctx(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := ctx.Value(attrKey{}).([]slog.Attr)
	combined := make([]slog.Attr, 0, len(existing)+len(attrs))
	combined = append(combined, existing...)
	combined = append(combined, attrs...)

	return context.WithValue(ctx, attrKey{}, combined)
}
