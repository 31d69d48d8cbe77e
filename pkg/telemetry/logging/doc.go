// Package logging provides structured logging with context fields.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Context-aware logging with request, object and trace fields
//   - A level that can be changed at runtime on configuration reload
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx = logging.WithObject(ctx, "Deployment", "default", "web")
//	logger.InfoContext(ctx, "Annotation written", "outcome", "written")
//
// trace_id and span_id are read from the OpenTelemetry span context in ctx,
// so any log line written inside a span can be joined with it in the trace
// backend.
//
// Components that accept a *slog.Logger are given Logger.Slog(). Its
// *Context methods add the same fields.
package logging
