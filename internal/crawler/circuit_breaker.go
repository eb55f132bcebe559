package crawler

import (
	"sync"
	"time"
)

// CircuitBreaker stops fetching after repeated failures until a cooldown has
// passed.
type CircuitBreaker struct {
	maxConsecutive int
	cooldown       time.Duration
	now            func() time.Time

	mu                  sync.Mutex
	consecutiveFailures int
	failures            int
	total               int
	isOpen              bool
	openedAt            time.Time
}

func NewCircuitBreaker(maxConsecutive int, cooldown time.Duration) *CircuitBreaker {
	if maxConsecutive <= 0 {
		maxConsecutive = 5
	}
	return &CircuitBreaker{maxConsecutive: maxConsecutive, cooldown: cooldown, now: time.Now}
}

// RecordSuccess resets the consecutive failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.total++
	cb.consecutiveFailures = 0
}

// RecordFailure counts a failed request. Blocking statuses (403, 429) open the
// circuit after two in a row.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.total++
	cb.failures++
	cb.consecutiveFailures++

	blocked := statusCode == 403 || statusCode == 429
	if (blocked && cb.consecutiveFailures >= 2) || cb.consecutiveFailures >= cb.maxConsecutive {
		cb.isOpen = true
		cb.openedAt = cb.now()
	}
}

// CanProceed reports whether a request may be sent. An open circuit closes
// again once the cooldown has elapsed.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.isOpen = false
		cb.consecutiveFailures = 0
		return true
	}
	return false
}

// Status returns whether the circuit is open and the failure counters
func (cb *CircuitBreaker) Status() (isOpen bool, failures int, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen, cb.failures, cb.total
}
