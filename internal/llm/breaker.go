package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"watchwise/internal/apperr"
	"watchwise/internal/metrics"
)

// BreakerSettings configures the provider circuit breaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Breaker guards a provider with a circuit breaker. Every provider failure,
// including an open breaker, comes back wrapped in
// apperr.ErrUpstreamUnavailable.
type Breaker struct {
	provider string
	client   Client
	embedder Embedder
	chat     *gobreaker.CircuitBreaker[Response]
	embed    *gobreaker.CircuitBreaker[[]float32]
}

// NewBreaker wraps client and embedder; either may be nil.
func NewBreaker(provider string, client Client, embedder Embedder, s BreakerSettings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("⚡ circuit breaker %s: %s -> %s", name, from, to)
				metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			},
		}
	}
	return &Breaker{
		provider: provider,
		client:   client,
		embedder: embedder,
		chat:     gobreaker.NewCircuitBreaker[Response](settings(s.Name + "-chat")),
		embed:    gobreaker.NewCircuitBreaker[[]float32](settings(s.Name + "-embed")),
	}
}

func (b *Breaker) Generate(ctx context.Context, messages []Message) (Response, error) {
	if b.client == nil {
		return Response{}, fmt.Errorf("%w: no text provider configured", apperr.ErrUpstreamUnavailable)
	}
	resp, err := b.chat.Execute(func() (Response, error) {
		return b.client.Generate(ctx, messages)
	})
	b.observe("chat", err)
	if err != nil {
		return Response{}, upstream(err)
	}
	return resp, nil
}

func (b *Breaker) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", apperr.ErrUpstreamUnavailable)
	}
	vec, err := b.embed.Execute(func() ([]float32, error) {
		return b.embedder.Embed(ctx, text)
	})
	b.observe("embed", err)
	if err != nil {
		return nil, upstream(err)
	}
	return vec, nil
}

func (b *Breaker) observe(kind string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "error"
		log.WithFields(log.Fields{"provider": b.provider, "kind": kind}).WithError(err).Warn("provider call failed")
	}
	metrics.LLMCalls.WithLabelValues(b.provider, kind, result).Inc()
}

func upstream(err error) error {
	if errors.Is(err, apperr.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrUpstreamUnavailable, err)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
