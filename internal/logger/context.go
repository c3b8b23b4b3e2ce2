package logger

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithCaller returns a context carrying the account acting on the board.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller returns the caller stored in ctx, or "".
func Caller(ctx context.Context) string {
	c, _ := ctx.Value(callerKey).(string)
	return c
}
