// Package correlation carries the identifier that ties spans and logs of one
// unit of work together: an HTTP request ID or a scheduler run ID.
package correlation

import "context"

type correlationKey struct{}

// ExtractCorrelationID returns the correlation ID on ctx, or "".
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets id on ctx. An empty id leaves ctx unchanged.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}
