package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nameday/internal/httpclient"
	"nameday/internal/logging"
	"nameday/internal/nameday"
	"nameday/internal/nameday/store"
	"nameday/internal/observability"
	serverhttp "nameday/internal/server/http"
)

// App is the assembled name-day server.
type App struct {
	cfg        Config
	service    *nameday.Service
	handler    http.Handler
	closeStore func() error
	tracing    *observability.TracerProvider
	logger     logging.Logger
}

// NewFetcher builds the Wikipedia fetcher described by cfg.
func NewFetcher(cfg Config) *nameday.Fetcher {
	client := httpclient.New(cfg.FetchTimeout, nameday.DefaultUserAgent)
	return nameday.NewFetcher(client, cfg.WikipediaURL, cfg.WikipediaPage)
}

// NewApp opens the configured store and builds the service and router.
func NewApp(cfg Config) (*App, error) {
	logger := logging.NewComponentLogger("server")

	storeCfg := cfg.StoreConfig()
	storeCfg.HTTPClient = httpclient.New(cfg.FetchTimeout, nameday.DefaultUserAgent)
	storeCfg.Logger = logging.NewComponentLogger("store")
	st, closeStore, err := store.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracing, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("tracing: %w", err)
	}

	service := nameday.NewService(st, NewFetcher(cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := serverhttp.NewRouter(serverhttp.RouterConfig{
		Service:        service,
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Registry:       reg,
		Tracer:         tracing.Tracer(),
		Logger:         logging.NewComponentLogger("http"),
	})

	return &App{
		cfg:        cfg,
		service:    service,
		handler:    router,
		closeStore: closeStore,
		tracing:    tracing,
		logger:     logger,
	}, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Listen returns the listener inherited through ListenFD, or binds the
// configured port when none was passed.
func Listen(cfg Config) (net.Listener, error) {
	if cfg.ListenFD > 0 {
		file := os.NewFile(uintptr(cfg.ListenFD), "inherited-listener")
		if file == nil {
			return nil, fmt.Errorf("invalid listener descriptor %d", cfg.ListenFD)
		}
		defer file.Close()
		ln, err := net.FileListener(file)
		if err != nil {
			return nil, fmt.Errorf("inherit listener fd %d: %w", cfg.ListenFD, err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	return ln, nil
}

// Run loads the calendar and serves on ln until ctx is canceled, then shuts
// down gracefully. A failed load is logged and the server starts with an
// empty calendar.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	defer func() {
		if err := a.closeStore(); err != nil {
			a.logger.Warn("Close store: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("Flush traces: %v", err)
		}
	}()

	if err := a.service.Load(ctx); err != nil {
		a.logger.Error("Load calendar: %v", err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	a.logger.Info("Serving on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.logger.Info("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
