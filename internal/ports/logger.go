package ports

import "context"

// Fields carries structured key/value context for a log line.
type Fields = map[string]interface{}

// Logger is the logging contract shared by the engine and all adapters.
// The first Fields argument, when present, is attached to the entry.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	// Error logs err alongside msg.
	Error(ctx context.Context, err error, msg string, fields ...Fields)
}
