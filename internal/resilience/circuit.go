// Package resilience wraps upstream calls in retries and circuit breakers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/config"
)

// Upstream service names used as breaker keys.
const (
	ServiceDocuments = "documents"
	ServiceValuation = "valuation"
	ServiceGeocode   = "geocode"
	ServiceJudgments = "judgments"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling upstream while a breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerSettings tunes a Breaker.
type BreakerSettings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// SettingsFromConfig converts configured values, falling back to 5 failures
// and a 60 second cool-down.
func SettingsFromConfig(cfg config.CircuitConfig) BreakerSettings {
	s := BreakerSettings{FailureThreshold: 5, ResetTimeout: 60 * time.Second}
	if cfg.FailureThreshold > 0 {
		s.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		s.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return s
}

// Breaker opens after FailureThreshold consecutive failures and lets a single
// probe through once ResetTimeout has elapsed.
type Breaker struct {
	name     string
	settings BreakerSettings

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// NewBreaker creates a closed breaker for the named service.
func NewBreaker(name string, s BreakerSettings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = 60 * time.Second
	}
	return &Breaker{name: name, settings: s, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State reports the current state, treating an expired open breaker as half-open.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.lastFailure) >= b.settings.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) >= b.settings.ResetTimeout {
		b.transition(CircuitHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "resilience: %s", b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != CircuitClosed {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == CircuitHalfOpen || b.failures >= b.settings.FailureThreshold {
		if b.state != CircuitOpen {
			b.transition(CircuitOpen)
		}
	}
}

func (b *Breaker) transition(to CircuitState) {
	zap.L().Info("circuit state change",
		zap.String("service", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Breakers hands out one Breaker per upstream service.
type Breakers struct {
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(s BreakerSettings) *Breakers {
	return &Breakers{settings: s, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use. A nil
// registry returns nil, which Call treats as no breaker.
func (r *Breakers) Get(service string) *Breaker {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, r.settings)
		r.breakers[service] = b
	}
	return b
}

// States snapshots every breaker's state.
func (r *Breakers) States() map[string]CircuitState {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]CircuitState, len(names))
	for _, b := range names {
		out[b.name] = b.State()
	}
	return out
}

// Call runs fn under retry policy p, each attempt guarded by b. An open
// breaker is not retried. b may be nil.
func Call[T any](ctx context.Context, b *Breaker, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return DoVal(ctx, p, fn)
	}
	return DoVal(ctx, p, func(ctx context.Context) (T, error) {
		var val T
		err := b.Execute(ctx, func(ctx context.Context) error {
			var err error
			val, err = fn(ctx)
			return err
		})
		return val, err
	})
}
