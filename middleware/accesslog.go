package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mnehpets/rpcserve/endpoint"
)

// AccessLogProcessor logs one line per request after the endpoint has run.
type AccessLogProcessor struct {
	Logger *slog.Logger
}

// NewAccessLogProcessor creates an AccessLogProcessor. A nil logger uses
// slog.Default().
func NewAccessLogProcessor(logger *slog.Logger) *AccessLogProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogProcessor{Logger: logger}
}

// statusRecorder captures the status written by the Renderer.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Process implements endpoint.Processor.
func (p *AccessLogProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r)

	// Errors are written by the handler after the chain returns.
	status := rec.status
	if err != nil {
		status = http.StatusInternalServerError
		var ee *endpoint.EndpointError
		if errors.As(err, &ee) && ee.Status >= 100 {
			status = ee.Status
		}
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	p.Logger.LogAttrs(r.Context(), level, "http request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Int("bytes", rec.bytes),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote", r.RemoteAddr),
	)
	return err
}

var _ endpoint.Processor = (*AccessLogProcessor)(nil)
