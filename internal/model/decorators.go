package model

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/intentions-server/internal/intentions"
	"github.com/ashureev/intentions-server/internal/metrics"
	"github.com/google/uuid"
)

type serialized struct {
	sem  chan struct{}
	next intentions.Model
}

// Serialized lets at most one call into next run at a time.
// The R environment is not known to be reentrant. Callers waiting for the
// slot give up when their ctx ends.
func Serialized(next intentions.Model) intentions.Model {
	return &serialized{sem: make(chan struct{}, 1), next: next}
}

func (s *serialized) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return intentions.Output{}, ctx.Err()
	}
	defer func() { <-s.sem }()

	if err := ctx.Err(); err != nil {
		return intentions.Output{}, err
	}
	return s.next.Run(ctx, trials)
}

type timeout struct {
	d    time.Duration
	next intentions.Model
}

// WithTimeout bounds each call to next by d. A non-positive d leaves calls
// unbounded.
func WithTimeout(next intentions.Model, d time.Duration) intentions.Model {
	if d <= 0 {
		return next
	}
	return &timeout{d: d, next: next}
}

func (t *timeout) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Run(ctx, trials)
}

type instrumented struct {
	next    intentions.Model
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Instrumented tags each call with an invocation id, records its duration
// and outcome, and logs it.
func Instrumented(next intentions.Model, m *metrics.Metrics, logger *slog.Logger) intentions.Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{next: next, metrics: m, logger: logger}
}

func (i *instrumented) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	id := uuid.NewString()
	ctx = WithInvocationID(ctx, id)

	start := time.Now()
	out, err := i.next.Run(ctx, trials)
	elapsed := time.Since(start)
	i.metrics.ObserveModel(elapsed.Seconds(), err)

	if err != nil {
		i.logger.Warn("model invocation failed",
			"invocation_id", id,
			"trials", trials.Len(),
			"duration", elapsed,
			"error", err,
		)
		return out, err
	}
	i.logger.Debug("model invoked",
		"invocation_id", id,
		"trials", trials.Len(),
		"duration", elapsed,
	)
	return out, nil
}
