package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	clientKey
)

var nop = zap.NewNop()

// TraceInfo is the Cloud Trace / otel span identity of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// ClientInfo identifies who issued the request, for logging and rate limiting.
type ClientInfo struct {
	UserID   string
	RemoteIP string
	AppID    string
}

// WithLogger attaches a request-scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return nop
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nop
}

// LoggerFrom returns the request logger and whether one was attached.
func LoggerFrom(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	return logger, ok && logger != nil
}

// WithTrace attaches trace identity.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey, info)
}

// Trace returns the trace identity when present.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID is shorthand for Trace(ctx).TraceID.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithClient attaches the caller identity, merging with what is already set.
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	current, _ := Client(ctx)
	if info.UserID == "" {
		info.UserID = current.UserID
	}
	if info.RemoteIP == "" {
		info.RemoteIP = current.RemoteIP
	}
	if info.AppID == "" {
		info.AppID = current.AppID
	}
	return context.WithValue(ctx, clientKey, info)
}

// Client returns the caller identity when present.
func Client(ctx context.Context) (ClientInfo, bool) {
	if ctx == nil {
		return ClientInfo{}, false
	}
	info, ok := ctx.Value(clientKey).(ClientInfo)
	return info, ok
}
