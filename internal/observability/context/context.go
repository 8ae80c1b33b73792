// Package context carries correlation identifiers through request and job contexts.
package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type runIDKey struct{}
type sourceKey struct{}

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithRunID tags the context with the import run currently being processed.
func WithRunID(ctx stdcontext.Context, runID string) stdcontext.Context {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, runIDKey{})
}

func WithSource(ctx stdcontext.Context, source string) stdcontext.Context {
	source = strings.TrimSpace(source)
	if source == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, sourceKey{}, source)
}

func SourceFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, sourceKey{})
}

func stringValue(ctx stdcontext.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
