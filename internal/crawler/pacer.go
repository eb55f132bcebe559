package crawler

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces requests to the shop by a base delay plus random jitter
type Pacer struct {
	baseDelay time.Duration
	jitter    time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

func NewPacer(baseDelay, jitter time.Duration) *Pacer {
	return &Pacer{baseDelay: baseDelay, jitter: jitter}
}

// Wait blocks until the next request may go out or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	required := p.baseDelay
	if p.jitter > 0 {
		required += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	if !p.lastRequest.IsZero() {
		if wait := required - time.Since(p.lastRequest); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	p.lastRequest = time.Now()
	return nil
}
