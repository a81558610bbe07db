package fetch

import (
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

// Resilient is the composed client used for one upstream source.
type Resilient struct {
	*Retry
	Breaker *CircuitBreaker
}

// NewResilient composes Retry(CircuitBreaker(raw)). Each source gets its own breaker so one
// failing upstream does not trip another.
func NewResilient(name string, raw Fetcher, cfg config.FetchConfig, logger *zap.Logger) *Resilient {
	breaker := NewCircuitBreaker(name, raw, cfg.FailureThreshold, cfg.Cooldown)
	return &Resilient{
		Retry:   NewRetry(breaker, cfg.Retries(), cfg.BackoffBase, logger),
		Breaker: breaker,
	}
}
