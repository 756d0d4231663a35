package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/internal/config"
	"github.com/mnehpets/rpcserve/internal/logger"
	"github.com/mnehpets/rpcserve/internal/metrics"
	"github.com/mnehpets/rpcserve/internal/natsrpc"
	"github.com/mnehpets/rpcserve/internal/services"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

const metricsPrefix = `rpcserved`

type app struct {
	cfg        *config.Config
	log        *slog.Logger
	metrics    *metrics.Store
	dispatcher *jsonrpc.Dispatcher
	serializer jsonrpc.Serializer
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Read(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Listen != "" {
		cfg.AppConfig.ListenAddr = g.Listen
	}
	if g.LogLevel != "" {
		cfg.AppConfig.LogLevel = g.LogLevel
	}
	return cfg, nil
}

// buildRegistry uses the configured method table, or the built-in one.
func buildRegistry(cfg *config.Config) (*jsonrpc.Registry, error) {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = services.DefaultMethods()
	}
	return jsonrpc.RegistryFromConfig(methods)
}

func newSerializer(name string) (jsonrpc.Serializer, error) {
	switch name {
	case config.SerializerCBOR:
		return jsonrpc.NewCBORSerializer()
	case config.SerializerJSON, "":
		return jsonrpc.JSONSerializer{}, nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}

func newApp(cfg *config.Config, log *slog.Logger, store *metrics.Store) (*app, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	ser, err := newSerializer(cfg.AppConfig.Serializer)
	if err != nil {
		return nil, err
	}

	opts := []jsonrpc.Option{jsonrpc.WithLogger(log), jsonrpc.WithObserver(store)}
	if len(cfg.Translations) > 0 {
		opts = append(opts, jsonrpc.WithTranslator(jsonrpc.Catalog(cfg.Translations)))
	}
	loc := services.Locator(reg.Methods, version)
	d := jsonrpc.NewDispatcher(reg, loc, opts...)

	// A configured method whose target does not exist still answers
	// METHOD_NOT_FOUND, but it is almost always a typo.
	for _, name := range reg.Methods() {
		desc, _ := reg.Resolve(name)
		svc, ok := loc.Service(desc.Service)
		if ok {
			_, ok = svc.Member(desc.Member)
		}
		if !ok {
			log.Warn("method target not found", "method", name, "target", desc.String())
		}
	}

	return &app{cfg: cfg, log: log, metrics: store, dispatcher: d, serializer: ser}, nil
}

func (a *app) processors() []endpoint.Processor {
	cfg := a.cfg.AppConfig
	ps := []endpoint.Processor{middleware.NewAccessLogProcessor(a.log)}

	var headerOpts []middleware.HeadersOption
	if len(cfg.CORSOrigins) > 0 {
		headerOpts = append(headerOpts, middleware.WithCORS(&middleware.CORSConfig{
			AllowedOrigins: cfg.CORSOrigins,
			MaxAge:         600,
		}))
	}
	ps = append(ps, middleware.NewHeadersProcessor(headerOpts...))

	if cfg.RateLimit > 0 {
		ps = append(ps, middleware.NewRateLimitProcessor(cfg.RateLimit, cfg.RateBurst))
	}
	return ps
}

type healthParams struct {
	// Verbose adds the registered method names.
	Verbose bool `query:"verbose"`
}

func (a *app) health(_ http.ResponseWriter, _ *http.Request, params healthParams) (endpoint.Renderer, error) {
	status := map[string]any{
		"status":  "ok",
		"version": version,
		"methods": a.dispatcher.Registry().Len(),
	}
	if params.Verbose {
		status["method_names"] = a.dispatcher.Registry().Methods()
	}
	return &endpoint.JSONRenderer{Value: status}, nil
}

func (a *app) live(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
	return &endpoint.NoContentRenderer{}, nil
}

func (a *app) versionText(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
	return &endpoint.StringRenderer{Body: fmt.Sprintf("%s %s (%s)\n", a.cfg.AppConfig.Name, version, commit)}, nil
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if a.cfg.AppConfig.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)

	r.Handle("/rpc", jsonrpc.NewHandler(a.dispatcher, a.serializer, a.processors()...))
	r.Get("/healthz", endpoint.HandleFunc(a.health))
	r.Get("/livez", endpoint.HandleFunc(a.live))
	r.Get("/version", endpoint.HandleFunc(a.versionText))
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics.Prometheus, promhttp.HandlerOpts{}))
	return r
}

// runHTTPServer serves until ctx is done, then shuts down gracefully.
func (a *app) runHTTPServer(ctx context.Context, g *errgroup.Group, handler http.Handler) {
	server := &http.Server{
		Addr:           a.cfg.AppConfig.ListenAddr,
		Handler:        handler,
		ReadTimeout:    defaultReadTimeout,
		WriteTimeout:   defaultWriteTimeout,
		IdleTimeout:    defaultIdleTimeout,
		MaxHeaderBytes: http.DefaultMaxHeaderBytes,
	}

	g.Go(func() error {
		a.log.Info("http: listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// runNATS starts the NATS transport when NATS_URL is set.
func (a *app) runNATS(ctx context.Context, g *errgroup.Group) error {
	cfg := a.cfg.AppConfig
	if cfg.NatsURL == "" {
		return nil
	}
	nc, err := natsrpc.Connect(cfg.NatsURL, cfg.Name, a.log)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	srv := natsrpc.New(nc.Conn, cfg.NatsSubject, cfg.Name, a.dispatcher, a.serializer, a.log, a.metrics)
	if err := srv.Run(ctx); err != nil {
		nc.Close()
		return err
	}
	// Draining the connection drains the subscription first, so in-flight
	// replies are flushed before it closes.
	g.Go(func() error {
		<-ctx.Done()
		return nc.Drain()
	})
	return nil
}

type ServeCmd struct{}

func (ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log := logger.New(&cfg.AppConfig, os.Stdout)
	slog.SetDefault(log)

	metrics.Commit = commit
	store := metrics.New(prometheus.NewRegistry(), metricsPrefix, cfg.AppConfig.Name, cfg.AppConfig.Env)
	store.BuildInfo.Inc()

	a, err := newApp(cfg, log, store)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("started %s", cfg.AppConfig.Name),
		"version", version,
		"methods", a.dispatcher.Registry().Len(),
		"serializer", a.serializer.ContentType(),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	a.runHTTPServer(egCtx, eg, a.routes())
	if err := a.runNATS(egCtx, eg); err != nil {
		stop()
		_ = eg.Wait()
		return err
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

type MethodsCmd struct{}

func (MethodsCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	for _, name := range reg.Methods() {
		desc, _ := reg.Resolve(name)
		fmt.Printf("%-24s %s\n", name, desc)
	}
	return nil
}
