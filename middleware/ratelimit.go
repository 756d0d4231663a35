package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mnehpets/rpcserve/endpoint"
)

// maxRateLimitClients bounds the per-client limiter table. When it is
// exceeded the table is cleared.
const maxRateLimitClients = 10000

// RateLimitProcessor limits requests per client with a token bucket.
// Requests over the limit are rejected with 429 before they reach the
// endpoint.
type RateLimitProcessor struct {
	limit rate.Limit
	burst int
	key   func(*http.Request) string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// RateLimitOption configures a RateLimitProcessor.
type RateLimitOption func(*RateLimitProcessor)

// WithRateLimitKey sets the function that assigns requests to buckets.
// The default uses the host part of r.RemoteAddr.
func WithRateLimitKey(fn func(*http.Request) string) RateLimitOption {
	return func(p *RateLimitProcessor) {
		p.key = fn
	}
}

// GlobalRateLimit puts all requests into one bucket.
func GlobalRateLimit() RateLimitOption {
	return WithRateLimitKey(func(*http.Request) string { return "" })
}

// NewRateLimitProcessor allows perSecond requests per second per client,
// with bursts of up to burst requests.
func NewRateLimitProcessor(perSecond float64, burst int, opts ...RateLimitOption) *RateLimitProcessor {
	p := &RateLimitProcessor{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		key:      remoteHost,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RateLimitProcessor) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		if len(p.limiters) >= maxRateLimitClients {
			p.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	return l
}

// Process implements endpoint.Processor.
func (p *RateLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if !p.limiter(p.key(r)).Allow() {
		w.Header().Set("Retry-After", "1")
		return endpoint.Error(http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
	return next(w, r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var _ endpoint.Processor = (*RateLimitProcessor)(nil)
