package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const staleClientAfter = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     rate.Limit
	burst   int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	p := &limiterPool{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go p.evictStale()
	return p
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

func (p *limiterPool) evictStale() {
	ticker := time.NewTicker(staleClientAfter)
	for range ticker.C {
		p.mu.Lock()
		for ip, c := range p.clients {
			if time.Since(c.lastSeen) > staleClientAfter {
				delete(p.clients, ip)
			}
		}
		p.mu.Unlock()
	}
}

// RateLimit returns middleware that limits requests per client IP.
// rps is the allowed requests per second, burst the maximum burst size.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !pool.get(ip).Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
