package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/roomcode"
	"github.com/wolfeidau/wishroom/internal/store"
	"github.com/wolfeidau/wishroom/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CodeSource draws candidate room codes.
type CodeSource interface {
	Next() (string, error)
}

// Engine implements the account, room, membership and wish operations on
// top of a store.Store. It is safe for concurrent use.
type Engine struct {
	store   store.Store
	policy  Policy
	codes   CodeSource
	metrics *telemetry.Metrics
}

// NewEngine creates an engine with the given store and policy.
func NewEngine(st store.Store, policy Policy) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &Engine{
		store:   st,
		policy:  policy,
		codes:   roomcode.NewGenerator(),
		metrics: telemetry.GetMetrics(),
	}, nil
}

// WithCodeSource replaces the room code generator.
func (e *Engine) WithCodeSource(codes CodeSource) *Engine {
	e.codes = codes
	return e
}

// Policy returns the policy the engine enforces.
func (e *Engine) Policy() Policy {
	return e.policy
}

// call runs fn under the operation timeout, classifies the error and records
// the outcome.
func call[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policy.OperationTimeout)
	defer cancel()

	start := time.Now()
	res, err := fn(ctx)
	err = classify(err)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	e.metrics.OperationsTotal.Add(ctx, 1, attrs)
	e.metrics.OperationDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		logger := zerolog.Ctx(ctx)
		switch KindOf(err) {
		case KindInternal, KindUnavailable:
			logger.Error().Err(err).Str("operation", op).Msg("operation failed")
		default:
			logger.Debug().Err(err).Str("operation", op).Str("outcome", outcome).Msg("operation rejected")
		}
		var zero T
		return zero, err
	}

	return res, nil
}

// exec is call for operations without a result.
func exec(ctx context.Context, e *Engine, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
