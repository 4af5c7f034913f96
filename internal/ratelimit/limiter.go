// Package ratelimit implements the gateway's two-layer rate limiting:
// a cheap token-bucket ingress guard (this file) ahead of chi's routing, and
// a sliding-window per-principal quota limiter (window.go) that enforces the
// RPM/TPM quotas carried on each Principal.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gonka_gateway",
		Name:      "ingress_rate_limit_exceeded_total",
		Help:      "Total ingress-layer rate limit rejections, before per-principal quota checks",
	},
	[]string{"limit_type"},
)

// IngressConfig holds the flood-guard configuration. This is deliberately
// coarser than the per-principal sliding window: its job is to keep a burst
// of unauthenticated or malformed traffic from reaching the auth/quota
// pipeline at all.
type IngressConfig struct {
	GlobalRate  rate.Limit
	GlobalBurst int

	PerIPRate  rate.Limit
	PerIPBurst int

	CleanupInterval time.Duration
}

// DefaultIngressConfig returns sensible defaults for a single-instance gateway.
func DefaultIngressConfig() IngressConfig {
	return IngressConfig{
		GlobalRate:  200,
		GlobalBurst: 400,

		PerIPRate:  20,
		PerIPBurst: 40,

		CleanupInterval: 5 * time.Minute,
	}
}

// IngressLimiter is the token-bucket flood guard in front of the gateway's
// auth/quota pipeline.
type IngressLimiter struct {
	config IngressConfig

	global *rate.Limiter
	perIP  map[string]*rate.Limiter
	mu     sync.RWMutex

	lastCleanup time.Time
}

// NewIngressLimiter creates a new token-bucket limiter with the given config.
func NewIngressLimiter(config IngressConfig) *IngressLimiter {
	return &IngressLimiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from clientIP may proceed.
func (l *IngressLimiter) Allow(clientIP string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	l.maybeCleanup()
	ipLimiter := l.getIPLimiter(clientIP)
	if !ipLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}

	return true
}

func (l *IngressLimiter) getIPLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}
	return limiter
}

// maybeCleanup drops all per-IP limiters once per CleanupInterval, bounding
// memory growth from one-off or spoofed source IPs.
func (l *IngressLimiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request, honoring
// reverse-proxy headers before falling back to RemoteAddr.
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if idx := findComma(xff); idx > 0 {
			xff = xff[:idx]
		}
		xff = trimSpace(xff)
		if xff != "" {
			return xff
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func findComma(s string) int {
	for i, c := range s {
		if c == ',' {
			return i
		}
	}
	return -1
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}
