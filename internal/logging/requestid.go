package logging

import "context"

type requestIDKey struct{}

// ContextWithRequestID stores a request id for loggers derived via FromContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID returns a logger that tags log lines with a request id.
func WithRequestID(logger Logger, requestID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if requestID == "" {
		return logger
	}
	return &requestIDLogger{logger: logger, requestID: requestID}
}

// FromContext returns a logger tagged with the request id found in ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithRequestID(logger, RequestIDFromContext(ctx))
}

type requestIDLogger struct {
	logger    Logger
	requestID string
}

func (l *requestIDLogger) Debug(format string, args ...any) {
	l.logger.Debug(l.prefix(format), args...)
}

func (l *requestIDLogger) Info(format string, args ...any) {
	l.logger.Info(l.prefix(format), args...)
}

func (l *requestIDLogger) Warn(format string, args ...any) {
	l.logger.Warn(l.prefix(format), args...)
}

func (l *requestIDLogger) Error(format string, args ...any) {
	l.logger.Error(l.prefix(format), args...)
}

func (l *requestIDLogger) prefix(format string) string {
	return "request_id=" + l.requestID + " " + format
}
