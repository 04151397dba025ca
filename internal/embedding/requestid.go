package embedding

import "context"

type requestIDKey struct{}

// WithRequestID attaches a caller's request id to ctx. Channel logs it and
// prefixes it to the errors it returns.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
