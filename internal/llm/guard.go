package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardConfig bounds how hard the fallback may lean on a provider.
type GuardConfig struct {
	Name              string
	RequestsPerMinute int
	// Timeout caps a single completion.
	Timeout time.Duration
}

// Guarded wraps a Completer with a request-rate limiter and a circuit breaker.
type Guarded struct {
	next    Completer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuarded wraps next.
func NewGuarded(next Completer, cfg GuardConfig, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		// Leave ten percent headroom under the provider quota.
		limit = rate.Limit(float64(cfg.RequestsPerMinute) * 0.9 / 60.0)
		burst = max(1, cfg.RequestsPerMinute/10)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		timeout: cfg.Timeout,
	}
}

// Complete implements Completer.
func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return out.(string), nil
}

// State reports the breaker state, for diagnostics.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
