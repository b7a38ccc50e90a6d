package httpapi

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter throttles PIN guesses per client address.
type loginLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clock     clockwork.Clock
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newLoginLimiter(perMinute float64, burst int, clock clockwork.Clock) *loginLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &loginLimiter{
		limit:     rate.Limit(perMinute / 60),
		burst:     burst,
		clock:     clock,
		visitors:  make(map[string]*visitor),
		lastSweep: clock.Now(),
	}
}

func (l *loginLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastSweep) > rateLimiterExpiry {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > rateLimiterExpiry {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
