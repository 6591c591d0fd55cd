// Package ratelimit paces deliveries per destination with a token bucket so
// a burst on one topic does not trip the chat platform's rate limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/sink"
)

// Sink wraps another sink and waits for a token before each delivery.
type Sink struct {
	next  sink.Sink
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[chat.DestinationID]*rate.Limiter
}

// Wrap returns next paced to rps deliveries per second per destination.
// A non-positive rps disables pacing and returns next unchanged.
func Wrap(next sink.Sink, rps float64, burst int) sink.Sink {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Sink{
		next:     next,
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[chat.DestinationID]*rate.Limiter),
	}
}

func (s *Sink) limiter(dest chat.DestinationID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	lim, ok := s.limiters[dest]
	if !ok {
		lim = rate.NewLimiter(s.limit, s.burst)
		s.limiters[dest] = lim
	}
	return lim
}

// Deliver waits for the destination's limiter, then delivers.
func (s *Sink) Deliver(ctx context.Context, dest chat.DestinationID, msg *chat.Message) error {
	if err := s.limiter(dest).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", dest, err)
	}
	return s.next.Deliver(ctx, dest, msg)
}

// Close closes the wrapped sink.
func (s *Sink) Close() error {
	return s.next.Close()
}
