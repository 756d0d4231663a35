package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/rpcserve/endpoint"
)

// HeadersProcessor sets response headers suited to a JSON API and handles
// CORS for cross-origin callers.
//
// Defaults from NewHeadersProcessor:
//   - X-Content-Type-Options: nosniff
//   - Referrer-Policy: no-referrer
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cache-Control: no-store
//   - Strict-Transport-Security: disabled (set with WithHSTS)
//   - CORS: disabled (set with WithCORS)
type HeadersProcessor struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	// Zero disables the header.
	HSTSMaxAge int

	ReferrerPolicy        string
	ContentSecurityPolicy string
	CacheControl          string
	NoSniff               bool

	// CORS configures Cross-Origin Resource Sharing headers.
	// Set to nil to disable CORS headers.
	CORS *CORSConfig
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists origins that may call the API. "*" allows any
	// origin unless AllowCredentials is set.
	AllowedOrigins []string

	// AllowedMethods are sent in preflight responses.
	// Default: ["POST", "OPTIONS"]
	AllowedMethods []string

	// AllowedHeaders are sent in preflight responses.
	// Default: ["Content-Type", "Authorization"]
	AllowedHeaders []string

	AllowCredentials bool

	// MaxAge is how long, in seconds, preflight results may be cached.
	MaxAge int
}

// HeadersOption configures a HeadersProcessor.
type HeadersOption func(*HeadersProcessor)

// NewHeadersProcessor creates a HeadersProcessor with API defaults.
func NewHeadersProcessor(opts ...HeadersOption) *HeadersProcessor {
	p := &HeadersProcessor{
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
		NoSniff:               true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTS enables Strict-Transport-Security with the given max-age.
func WithHSTS(maxAge int) HeadersOption {
	return func(p *HeadersProcessor) {
		p.HSTSMaxAge = maxAge
	}
}

// WithCacheControl sets the Cache-Control header. Empty disables it.
func WithCacheControl(v string) HeadersOption {
	return func(p *HeadersProcessor) {
		p.CacheControl = v
	}
}

// WithCORS enables CORS for the given origins. Unset method and header
// lists get the defaults documented on CORSConfig.
func WithCORS(config *CORSConfig) HeadersOption {
	return func(p *HeadersProcessor) {
		if config != nil {
			if len(config.AllowedMethods) == 0 {
				config.AllowedMethods = []string{http.MethodPost, http.MethodOptions}
			}
			if len(config.AllowedHeaders) == 0 {
				config.AllowedHeaders = []string{"Content-Type", "Authorization"}
			}
		}
		p.CORS = config
	}
}

// Process implements endpoint.Processor.
func (p *HeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.HSTSMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(p.HSTSMaxAge)+"; includeSubDomains")
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.CacheControl != "" {
		h.Set("Cache-Control", p.CacheControl)
	}
	if p.NoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}

	if p.CORS != nil {
		setCORSHeaders(w, r, p.CORS)

		// Preflight requests are answered here and never reach the endpoint.
		if r.Method == http.MethodOptions &&
			r.Header.Get("Origin") != "" &&
			r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}

	return next(w, r)
}

// setCORSHeaders sets CORS headers when the request carries an Origin.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	h := w.Header()
	h.Add("Vary", "Origin")

	for _, allowed := range config.AllowedOrigins {
		if allowed == "*" {
			// A wildcard origin must never be combined with credentials.
			if config.AllowCredentials {
				continue
			}
			h.Set("Access-Control-Allow-Origin", "*")
			break
		}
		if allowed == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			break
		}
	}

	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		if len(config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		}
		if len(config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		}
		if config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*HeadersProcessor)(nil)
