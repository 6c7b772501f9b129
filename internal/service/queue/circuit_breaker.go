package queue

import (
	"sync"
	"time"

	"github.com/Notifuse/outreach/pkg/emailerror"
)

// CircuitBreakerConfig holds configuration for the transport circuit breaker
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive provider failures that opens the circuit
	Threshold int

	// CooldownPeriod is how long the circuit stays open after the last failure
	CooldownPeriod time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:      5,
		CooldownPeriod: time.Minute,
	}
}

type circuitState struct {
	failures    int
	lastFailure time.Time
	lastError   *emailerror.ClassifiedError
	open        bool
}

// TransportCircuitBreaker stops claiming work while a mail transport keeps failing.
// Recipient errors never count toward the threshold.
type TransportCircuitBreaker struct {
	mu     sync.Mutex
	states map[string]*circuitState
	config CircuitBreakerConfig
	now    func() time.Time
}

func NewTransportCircuitBreaker(config CircuitBreakerConfig) *TransportCircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.CooldownPeriod <= 0 {
		config.CooldownPeriod = defaults.CooldownPeriod
	}

	return &TransportCircuitBreaker{
		states: make(map[string]*circuitState),
		config: config,
		now:    time.Now,
	}
}

// IsOpen reports whether sends through the transport are suspended.
// An open circuit closes by itself once the cooldown has elapsed.
func (b *TransportCircuitBreaker) IsOpen(kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[kind]
	if !ok || !state.open {
		return false
	}
	if b.now().Sub(state.lastFailure) >= b.config.CooldownPeriod {
		state.open = false
		state.failures = 0
		state.lastError = nil
	}
	return state.open
}

func (b *TransportCircuitBreaker) RecordSuccess(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state, ok := b.states[kind]; ok {
		state.failures = 0
		state.lastError = nil
		state.open = false
	}
}

// RecordFailure counts a provider failure and reports whether it was counted
func (b *TransportCircuitBreaker) RecordFailure(kind string, classified *emailerror.ClassifiedError) bool {
	if classified == nil || !classified.IsProviderError() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[kind]
	if !ok {
		state = &circuitState{}
		b.states[kind] = state
	}
	state.failures++
	state.lastFailure = b.now()
	state.lastError = classified
	if state.failures >= b.config.Threshold {
		state.open = true
	}
	return true
}

// CircuitBreakerStats contains statistics for one transport
type CircuitBreakerStats struct {
	IsOpen       bool          `json:"is_open"`
	Failures     int           `json:"failures"`
	Threshold    int           `json:"threshold"`
	LastFailure  time.Time     `json:"last_failure,omitempty"`
	CooldownLeft time.Duration `json:"cooldown_left,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

func (b *TransportCircuitBreaker) Stats() map[string]CircuitBreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	stats := make(map[string]CircuitBreakerStats, len(b.states))
	for kind, state := range b.states {
		stat := CircuitBreakerStats{
			IsOpen:      state.open,
			Failures:    state.failures,
			Threshold:   b.config.Threshold,
			LastFailure: state.lastFailure,
		}
		if state.lastError != nil {
			stat.LastError = state.lastError.Error()
		}
		if state.open {
			if left := b.config.CooldownPeriod - now.Sub(state.lastFailure); left > 0 {
				stat.CooldownLeft = left
			}
		}
		stats[kind] = stat
	}
	return stats
}
