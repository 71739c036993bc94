// Package logging defines the structured-logging seam used by the server
// and client. The only implementation wraps log/slog, but services depend
// on the interface so tests can discard output.
package logging

import "context"

// Logger logs structured messages. The variadic args are alternating
// key-value pairs, as in slog:
//
//	log.Info(ctx, "revision accepted", "account_id", id, "revision", n)
type Logger interface {
	// Debug logs fine-grained diagnostics.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs normal operational events.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but recoverable conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs on
	// every record.
	With(args ...any) Logger
}
