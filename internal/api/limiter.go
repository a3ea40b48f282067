package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"monositi/internal/config"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// rateLimiter hands out one token bucket per client address. X-Forwarded-For
// is only consulted when the direct peer is a trusted proxy.
type rateLimiter struct {
	limiters sync.Map // key -> *limiterEntry
	cfg      config.APIRateLimitConfig
	trusted  []*net.IPNet
	now      func() time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &rateLimiter{cfg: cfg, trusted: parseTrustedProxies(cfg.TrustedProxies), now: time.Now}
}

func parseTrustedProxies(entries []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (l *rateLimiter) enabled() bool {
	return l.cfg.RPS > 0
}

func (l *rateLimiter) allow(r *http.Request) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(l.clientKey(r)).Allow()
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	now := l.now().UnixNano()
	if v, ok := l.limiters.Load(key); ok {
		entry := v.(*limiterEntry)
		entry.lastSeen.Store(now)
		return entry.lim
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	entry := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)}
	entry.lastSeen.Store(now)
	actual, _ := l.limiters.LoadOrStore(key, entry)
	stored := actual.(*limiterEntry)
	stored.lastSeen.Store(now)
	return stored.lim
}

// sweep drops buckets idle for longer than IdleTTL and reports how many went.
func (l *rateLimiter) sweep() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL).UnixNano()
	removed := 0
	l.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (l *rateLimiter) size() int {
	n := 0
	l.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (l *rateLimiter) isTrusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range l.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientKey is the peer address, or for trusted peers the right-most
// X-Forwarded-For hop that is not itself a trusted proxy.
func (l *rateLimiter) clientKey(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || peer == "" {
		peer = r.RemoteAddr
	}
	if peer == "" {
		return "unknown"
	}
	if !l.isTrusted(net.ParseIP(peer)) {
		return peer
	}

	fwd := r.Header.Values("X-Forwarded-For")
	if len(fwd) == 0 {
		return peer
	}
	hops := strings.Split(strings.Join(fwd, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			// Garbage in the chain; stop trusting it at this point.
			return peer
		}
		if !l.isTrusted(ip) {
			return ip.String()
		}
	}
	return peer
}
