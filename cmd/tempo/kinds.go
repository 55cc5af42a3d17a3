package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avermeer/tempo/internal/engine"
)

// registerBuiltinKinds installs the job kinds the standalone binary ships
// with. A hosting service embeds the scheduler packages and registers its own
// kinds instead; these exist so the binary is usable on its own.
func registerBuiltinKinds(registry *engine.Registry, logger *slog.Logger) {
	// noop: completes immediately; useful for exercising schedules
	registry.Register("noop", func(ctx context.Context, args []any, kwargs, metadata map[string]any) (engine.Result, error) {
		return engine.Result{Success: true}, nil
	})

	// log: emits its kwargs at info level
	registry.Register("log", func(ctx context.Context, args []any, kwargs, metadata map[string]any) (engine.Result, error) {
		logger.Info("log job fired", "args", args, "kwargs", kwargs)
		return engine.Result{Success: true, ItemsProcessed: len(args)}, nil
	})

	// sleep: holds a worker slot for kwargs["duration"] (Go duration string),
	// respecting cancellation. Useful for observing pool and gate behavior.
	registry.Register("sleep", func(ctx context.Context, args []any, kwargs, metadata map[string]any) (engine.Result, error) {
		raw, ok := kwargs["duration"].(string)
		if !ok {
			return engine.Result{}, fmt.Errorf("sleep job requires a duration kwarg")
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return engine.Result{}, fmt.Errorf("invalid sleep duration %q: %w", raw, err)
		}

		select {
		case <-time.After(d):
			return engine.Result{Success: true}, nil
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	})
}
