package retry

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures a provider circuit breaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxHalfOpen      uint32
}

// NewBreaker creates a circuit breaker for provider calls. It opens after
// FailureThreshold consecutive failures and probes again after Timeout.
func NewBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[[]byte] {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxHalfOpen := s.MaxHalfOpen
	if maxHalfOpen == 0 {
		maxHalfOpen = 1
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: maxHalfOpen,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}
