package llmpolicy

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/metrics"
)

// FailoverState holds one circuit breaker per provider name so a
// transiently-failing primary isn't retried on every single call —
// adapted from the teacher's routing.FailoverState, narrowed from an
// N-provider priority chain to the two-tier primary/secondary pair
// spec.md §4.4 step 4 calls for, and backed by sony/gobreaker/v2's
// closed/open/half-open state machine instead of a hand-rolled failure
// counter.
type FailoverState struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker[*llm.ChatResponse]
	threshold uint32
	cooldown  time.Duration
}

func NewFailoverState(threshold int, cooldown time.Duration) *FailoverState {
	return &FailoverState{
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*llm.ChatResponse]),
		threshold: uint32(threshold),
		cooldown:  cooldown,
	}
}

func (fs *FailoverState) breaker(provider string) *gobreaker.CircuitBreaker[*llm.ChatResponse] {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if b, ok := fs.breakers[provider]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[*llm.ChatResponse](gobreaker.Settings{
		Name:    provider,
		Timeout: fs.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= fs.threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
		},
	})
	fs.breakers[provider] = b
	return b
}

// Call runs fn through the named provider's breaker. While the breaker
// is open it fails immediately with gobreaker.ErrOpenState rather than
// attempting the call, letting invokeWithFailover skip straight to the
// other model.
func (fs *FailoverState) Call(provider string, fn func() (*llm.ChatResponse, error)) (*llm.ChatResponse, error) {
	return fs.breaker(provider).Execute(fn)
}
