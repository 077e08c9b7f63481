package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// ResilientConfig configures a Resilient mover.
type ResilientConfig struct {
	// MaxConcurrent limits concurrent relocations.
	MaxConcurrent int

	// CircuitThreshold is the number of consecutive failures before a
	// host breaker opens.
	CircuitThreshold int

	// CircuitTimeout is how long a host breaker stays open.
	CircuitTimeout time.Duration

	// RetryAttempts is the maximum number of attempts per relocation.
	RetryAttempts int

	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration

	// RetryMultiplier is the exponential backoff multiplier.
	RetryMultiplier float64

	// RateLimit is the number of relocations allowed per host per second.
	// Zero disables rate limiting.
	RateLimit int

	// Burst is the rate limiter bucket capacity.
	Burst int
}

// DefaultResilientConfig returns a configuration with sensible defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxConcurrent:    8,
		CircuitThreshold: 5,
		CircuitTimeout:   30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       100 * time.Millisecond,
		RetryMultiplier:  2.0,
	}
}

// ResilientConfigFrom converts the transport section of the configuration.
func ResilientConfigFrom(c config.TransportConfig) ResilientConfig {
	rc := DefaultResilientConfig()
	if c.MaxConcurrent > 0 {
		rc.MaxConcurrent = c.MaxConcurrent
	}
	if c.CircuitThreshold > 0 {
		rc.CircuitThreshold = c.CircuitThreshold
	}
	if c.CircuitTimeout > 0 {
		rc.CircuitTimeout = c.CircuitTimeout.Duration()
	}
	if c.RetryAttempts > 0 {
		rc.RetryAttempts = c.RetryAttempts
	}
	if c.RetryDelay > 0 {
		rc.RetryDelay = c.RetryDelay.Duration()
	}
	rc.RateLimit = c.RateLimit
	rc.Burst = c.Burst
	return rc
}

// Resilient wraps a Mover with a bulkhead, a circuit breaker per destination
// host, retry with exponential backoff and an optional per host rate limit.
type Resilient struct {
	next     routing.Mover
	config   ResilientConfig
	bulkhead bulkhead.Bulkhead[struct{}]
	retrier  retry.Retry[struct{}]
	limiter  ratelimit.RateLimiter

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[struct{}]
}

// NewResilient wraps next.
func NewResilient(next routing.Mover, config ResilientConfig) *Resilient {
	// Ensure non-negative values for uint32 conversion
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}
	if config.CircuitThreshold <= 0 {
		config.CircuitThreshold = 5
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = 2.0
	}

	r := &Resilient{
		next:   next,
		config: config,
		bulkhead: bulkhead.New[struct{}](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		}),
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   config.RetryAttempts,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryMultiplier,
			// Nobody will ever serve an unknown host.
			NonRetryableErrors: []error{routing.ErrUnknownHost},
		}),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[struct{}]),
	}

	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = config.RateLimit
		}
		r.limiter = ratelimit.New(&ratelimit.Config{
			Rate:  config.RateLimit,
			Burst: burst,
		})
	}
	return r
}

// Move relocates r through the resilience chain.
// Composition order: rate limit → bulkhead → host breaker → retry.
func (m *Resilient) Move(ctx context.Context, r routing.Relocation) error {
	host := r.Host()

	if m.limiter != nil && !m.limiter.Allow(ctx, host) {
		logging.Warn().
			Add(logging.AgentID(r.AgentID)).
			Add(logging.Str("host", host)).
			Msg("relocation rate limit exceeded")
		return fmt.Errorf("%w: %w: %s", agent.ErrMoveFailed, routing.ErrRateLimited, host)
	}

	breaker := m.breaker(host)

	_, err := m.bulkhead.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return m.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, m.next.Move(ctx, r)
			})
		})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, agent.ErrMoveFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", agent.ErrMoveFailed, err)
}

// BreakerState returns the breaker state for hostURL, creating the breaker
// when the host was never used.
func (m *Resilient) BreakerState(hostURL string) circuitbreaker.State {
	return m.breaker(hostURL).State()
}

func (m *Resilient) breaker(host string) circuitbreaker.CircuitBreaker[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[host]; ok {
		return cb
	}

	threshold := m.config.CircuitThreshold
	cb := circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    m.config.CircuitTimeout,
		Timeout:     m.config.CircuitTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked in NewResilient
		},
	})
	m.breakers[host] = cb
	return cb
}

var _ routing.Mover = (*Resilient)(nil)
