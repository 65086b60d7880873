// Package gateway holds the channel-facing services: connection testing
// and outbound dispatch.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/converso/gateway/internal/channel"
)

// testResultSink persists the latest connection test outcome on a
// channel configuration.
type testResultSink interface {
	UpdateTestResult(ctx context.Context, id string, result channel.TestResult) error
}

// Tester runs provider connection tests. It never returns an error to
// its caller; every failure mode is folded into the result.
type Tester struct {
	registry *channel.Registry
	results  testResultSink
	logger   *slog.Logger
}

// NewTester creates a connection tester. results may be nil when test
// outcomes should not be persisted.
func NewTester(log *slog.Logger, registry *channel.Registry, results testResultSink) *Tester {
	if log == nil {
		log = slog.Default()
	}
	return &Tester{
		registry: registry,
		results:  results,
		logger:   log.With(slog.String("component", "connection_tester")),
	}
}

// Test validates a channel configuration against its provider and
// returns a structured result. When the configuration is already
// persisted, the result is stored on it as the last test outcome.
func (t *Tester) Test(ctx context.Context, cfg channel.Config) channel.TestResult {
	result := channel.TestResult{
		Status:    channel.TestStatusError,
		Timestamp: time.Now().UTC(),
	}

	adapter, ok := t.registry.Get(cfg.Type)
	if !ok {
		result.Message = fmt.Sprintf("unsupported channel type: %s", cfg.Type)
		t.persist(ctx, cfg, result)
		return result
	}

	outcome, err := adapter.TestConnection(ctx, cfg)
	switch {
	case err != nil:
		result.Message = err.Error()
		result.Details = map[string]any{"error_kind": string(channel.KindOf(err))}
		t.logger.Warn("connection test failed",
			slog.String("channel_id", cfg.ID),
			slog.String("channel_type", cfg.Type.String()),
			slog.String("error_kind", string(channel.KindOf(err))),
			slog.String("error", err.Error()))
	case !outcome.Success:
		result.Message = outcome.Message
		result.Details = outcome.Details
		if result.Message == "" {
			result.Message = "connection test failed"
		}
	default:
		result.Status = channel.TestStatusSuccess
		result.Message = outcome.Message
		result.Details = outcome.Details
	}

	t.persist(ctx, cfg, result)
	return result
}

// persist best-effort stores the result; a storage failure never masks
// the test outcome.
func (t *Tester) persist(ctx context.Context, cfg channel.Config, result channel.TestResult) {
	if t.results == nil || cfg.ID == "" {
		return
	}
	if err := t.results.UpdateTestResult(ctx, cfg.ID, result); err != nil {
		t.logger.Error("persist test result",
			slog.String("channel_id", cfg.ID),
			slog.String("error", err.Error()))
	}
}
