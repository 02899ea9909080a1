package app

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 5 * time.Minute
)

// rateLimiterMap holds one token bucket per client address. Buckets idle for
// longer than limiterIdleTimeout are dropped by the sweep loop.
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	done     chan struct{}
	once     sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(client string, rps float64, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.limiters[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[client] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (m *rateLimiterMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

func (m *rateLimiterMap) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client, entry := range m.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTimeout {
			delete(m.limiters, client)
		}
	}
}

func (m *rateLimiterMap) sweepLoop() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *rateLimiterMap) stop() {
	m.once.Do(func() { close(m.done) })
}

// clientAddr returns the address the rate limiter keys on. X-Forwarded-For
// is only read when the direct peer is a trusted proxy; the chain is then
// walked from the right and the first untrusted hop wins.
func clientAddr(r *http.Request, trusted []netip.Prefix) string {
	remote := hostOnly(r.RemoteAddr)
	if len(trusted) == 0 || !isTrusted(remote, trusted) {
		return remote
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := hostOnly(strings.TrimSpace(hops[i]))
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return remote
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isTrusted(host string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
