package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minLimiterIdle is the shortest time a sender's bucket is kept after its
// last message.
const minLimiterIdle = time.Minute

// senderLimiter throttles POST /messages per sender name with a token bucket.
// Buckets idle for longer than idle are full again and get swept on insert.
type senderLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	limiters  map[string]*senderBucket
}

type senderBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newSenderLimiter(perSecond float64, burst int) *senderLimiter {
	if burst <= 0 {
		burst = 1
	}
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}
	return &senderLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		limiters: make(map[string]*senderBucket),
	}
}

func (l *senderLimiter) allow(sender string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limiters[sender]
	if !ok {
		l.sweep(now)
		b = &senderBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[sender] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets unused for l.idle, at most once per l.idle.
func (l *senderLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for sender, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.limiters, sender)
		}
	}
}

func (l *senderLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
