// Package natsrpc serves a jsonrpc.Dispatcher over NATS request/reply.
// Each message on the subject is one request body; the encoded response is
// published to the message's reply subject.
package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

const transportName = `nats`

const drainTimeout = 10 * time.Second

// MessageObserver counts handled messages.
type MessageObserver interface {
	ObserveMessage(transport string, err error)
}

// Conn is a NATS connection that reports when it has closed.
type Conn struct {
	*nats.Conn
	closed chan struct{}
	once   sync.Once
}

// Connect opens a NATS connection that reconnects in the background and
// logs connection state changes.
func Connect(url, name string, log *slog.Logger) (*Conn, error) {
	c := &Conn{closed: make(chan struct{})}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats client disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats client reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
			c.once.Do(func() { close(c.closed) })
		}),
	)
	if err != nil {
		return nil, err
	}
	c.Conn = nc
	return c, nil
}

// Drain stops delivery to every subscription, waits for their in-flight
// handlers and replies, then closes the connection. It returns once the
// connection has closed.
func (c *Conn) Drain() error {
	return waitDrained(c.Conn.Drain, c.closed)
}

// waitDrained starts drain and blocks until closed. A connection that is
// already closed or draining is not an error.
func waitDrained(drain func() error, closed <-chan struct{}) error {
	err := drain()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrConnectionDraining) {
		return fmt.Errorf("natsrpc: drain: %w", err)
	}
	<-closed
	return nil
}

type Server struct {
	conn       *nats.Conn
	subject    string
	queue      string
	dispatcher *jsonrpc.Dispatcher
	serializer jsonrpc.Serializer
	log        *slog.Logger
	observer   MessageObserver
}

// New creates a Server. A nil serializer selects jsonrpc.JSONSerializer.
// Servers sharing a non-empty queue group split the subject's messages.
func New(conn *nats.Conn, subject, queue string, d *jsonrpc.Dispatcher, s jsonrpc.Serializer, log *slog.Logger, observer MessageObserver) *Server {
	if s == nil {
		s = jsonrpc.JSONSerializer{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		conn:       conn,
		subject:    subject,
		queue:      queue,
		dispatcher: d,
		serializer: s,
		log:        log,
		observer:   observer,
	}
}

// Run subscribes to the subject. Messages are served until the
// connection is drained; ctx is passed to the dispatcher.
func (s *Server) Run(ctx context.Context) error {
	handler := func(msg *nats.Msg) {
		err := s.serve(ctx, msg)
		if err != nil {
			s.log.Error("nats: reply failed", "subject", msg.Subject, "error", err)
		}
		if s.observer != nil {
			s.observer.ObserveMessage(transportName, err)
		}
	}

	var err error
	if s.queue != "" {
		_, err = s.conn.QueueSubscribe(s.subject, s.queue, handler)
	} else {
		_, err = s.conn.Subscribe(s.subject, handler)
	}
	if err != nil {
		return fmt.Errorf("natsrpc: subscribe %s: %w", s.subject, err)
	}
	s.log.Info("nats: serving json-rpc", "subject", s.subject, "queue", s.queue)
	return nil
}

func (s *Server) serve(ctx context.Context, msg *nats.Msg) error {
	out, err := s.handle(ctx, msg.Data)
	if err != nil {
		return err
	}
	if msg.Reply == "" {
		s.log.Debug("nats: request without reply subject", "subject", msg.Subject)
		return nil
	}
	return msg.Respond(out)
}

// handle dispatches one request body and returns the encoded response.
func (s *Server) handle(ctx context.Context, data []byte) ([]byte, error) {
	resp := s.dispatcher.Dispatch(ctx, data)
	out, err := s.dispatcher.Encode(s.serializer, resp)
	if err != nil {
		return nil, fmt.Errorf("natsrpc: %w", err)
	}
	return out, nil
}
