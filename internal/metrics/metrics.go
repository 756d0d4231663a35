package metrics

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Store struct {
	Prometheus    *prometheus.Registry
	BuildInfo     prometheus.Counter
	Calls         *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	TransportMsgs *prometheus.CounterVec
}

const (
	Method    = `method`
	Code      = `code`
	Transport = `transport`
	Status    = `status`
)

const (
	StatusOk   = `Ok`
	StatusFail = `Fail`
)

// Commit is set at build time with -ldflags.
var Commit string

// New registers the store's collectors on promRegistry.
func New(promRegistry *prometheus.Registry, prefix, appName, env string) *Store {
	factory := promauto.With(promRegistry)
	return &Store{
		Prometheus: promRegistry,
		BuildInfo: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_build_info", prefix),
			Help: "Build information",
			ConstLabels: prometheus.Labels{
				"name":    appName,
				"env":     env,
				"commit":  Commit,
				"version": runtime.Version(),
			},
		}),
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rpc_calls_total", prefix),
			Help: "The total number of JSON-RPC calls by method and response code",
		}, []string{Method, Code}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_rpc_call_duration_seconds", prefix),
			Help:    "Time spent dispatching a JSON-RPC call",
			Buckets: prometheus.DefBuckets,
		}, []string{Method}),
		TransportMsgs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_transport_messages_total", prefix),
			Help: "The total number of messages handled per transport",
		}, []string{Transport, Status}),
	}
}

// ObserveCall implements jsonrpc.Observer. Code 0 is a success.
func (s *Store) ObserveCall(method string, code int, elapsed time.Duration) {
	s.Calls.With(prometheus.Labels{Method: method, Code: strconv.Itoa(code)}).Inc()
	s.CallDuration.With(prometheus.Labels{Method: method}).Observe(elapsed.Seconds())
}

// ObserveMessage counts a message handled by a non-HTTP transport.
func (s *Store) ObserveMessage(transport string, err error) {
	status := StatusOk
	if err != nil {
		status = StatusFail
	}
	s.TransportMsgs.With(prometheus.Labels{Transport: transport, Status: status}).Inc()
}
