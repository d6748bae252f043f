// Package judgment wraps the external judgment-generation capability and the
// missed-opportunity analysis that turns unaddressed moves into learning
// suggestions. The text-generation provider itself lives outside this core;
// everything here treats it as a fallible collaborator.
package judgment

import (
	"context"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/predictalab/quorum/internal/errs"
)

// Generator produces a raw textual judgment (often JSON, not guaranteed).
type Generator interface {
	GenerateJudgment(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GuardedGenerator wraps a Generator with a circuit breaker and a token
// bucket so a degraded provider cannot stall or hammer the sweep.
type GuardedGenerator struct {
	inner   Generator
	breaker *cb.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedGenerator builds the guard with the given requests-per-second
// limit and burst.
func NewGuardedGenerator(inner Generator, rps float64, burst int) *GuardedGenerator {
	st := cb.Settings{Name: "judgment"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}

	return &GuardedGenerator{
		inner:   inner,
		breaker: cb.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GenerateJudgment waits for rate-limit headroom, then calls through the
// breaker. Breaker-open and provider failures surface as Upstream errors.
func (g *GuardedGenerator) GenerateJudgment(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errs.Upstream("judgment", err)
	}
	out, err := g.breaker.Execute(func() (any, error) {
		return g.inner.GenerateJudgment(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", errs.Upstream("judgment", err)
	}
	return out.(string), nil
}
