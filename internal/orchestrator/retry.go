// retry.go wraps every provider call in rate limiting, a circuit breaker,
// a per-call timeout and bounded retries of transient failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/provider"
)

// ErrCircuitOpen is returned when a provider's breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// guard holds the per-connector call policy. Roles sharing a connector
// share its guard.
type guard struct {
	conn    provider.Connector
	limiter *rate.Limiter
	breaker *CircuitBreaker
	timeout time.Duration
}

func newGuard(conn provider.Connector, limits Limits, threshold int, cooldown time.Duration) *guard {
	g := &guard{
		conn:    conn,
		breaker: NewCircuitBreaker(threshold, cooldown),
		timeout: limits.Timeout,
	}
	if limits.RequestsPerMin > 0 {
		perSec := rate.Limit(float64(limits.RequestsPerMin) / 60)
		g.limiter = rate.NewLimiter(perSec, limits.RequestsPerMin)
	}
	return g
}

// backoff returns base * 2^(attempt-1), capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt-1)) * base
	if max > 0 && (d > max || d <= 0) {
		d = max
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callWithRetry makes up to MaxRetries attempts against g. Only transient
// errors are retried. It returns the number of attempts that reached the
// provider.
func (o *Orchestrator) callWithRetry(ctx context.Context, userID, stage string, g *guard, req provider.Request) (*provider.Response, int, error) {
	name := g.conn.Name()
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoff(o.opts.BackoffBase, o.opts.MaxBackoff, attempt-1)); err != nil {
				return nil, attempts, fmt.Errorf("%s: %w", name, err)
			}
		}
		if !g.breaker.Allow() {
			return nil, attempts, fmt.Errorf("%s: %w", name, ErrCircuitOpen)
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, attempts, fmt.Errorf("%s: rate limit wait: %w", name, err)
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		start := time.Now()
		resp, err := g.conn.Generate(callCtx, req)
		elapsed := time.Since(start)
		cancel()
		attempts++

		o.metrics.RecordProviderCall(ctx, name, stage, elapsed, err)
		logProviderCall(o.opts.Logger, userID, stage, name, attempt, elapsed, err)

		if err == nil {
			g.breaker.RecordSuccess()
			return resp, attempts, nil
		}
		lastErr = err
		if !provider.IsTransient(err) {
			return nil, attempts, err
		}
		g.breaker.RecordFailure()
		if ctx.Err() != nil {
			return nil, attempts, err
		}
		if attempt < o.opts.MaxRetries {
			logRetry(o.opts.Logger, userID, stage, name, attempt, err)
		}
	}

	return nil, attempts, lastErr
}

// logProviderCall logs a provider_call or provider_failed event.
func logProviderCall(logger *log.Logger, userID, stage, name string, attempt int, elapsed time.Duration, err error) {
	if logger == nil {
		return
	}
	ev := log.LogEvent{
		Event:      log.EventProviderCall,
		UserID:     userID,
		Stage:      stage,
		Provider:   name,
		Attempt:    attempt,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		ev.Event = log.EventProviderFailed
		ev.Error = err.Error()
	}
	_ = logger.Append(ev)
}

// logRetry logs a provider_retry event.
func logRetry(logger *log.Logger, userID, stage, name string, attempt int, err error) {
	if logger == nil {
		return
	}
	_ = logger.Append(log.LogEvent{
		Event:    log.EventProviderRetry,
		UserID:   userID,
		Stage:    stage,
		Provider: name,
		Attempt:  attempt,
		Error:    err.Error(),
	})
}
