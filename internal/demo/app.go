package demo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JeanGrijp/csrfguard/csrf"
	"github.com/JeanGrijp/csrfguard/internal/config"
	"github.com/JeanGrijp/csrfguard/session"
	"github.com/JeanGrijp/csrfguard/session/memstore"
	"github.com/JeanGrijp/csrfguard/session/natsstore"
	"github.com/JeanGrijp/csrfguard/session/redisstore"
)

// App is the assembled demo server.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	server  *http.Server
	closers []func() error
}

// NewLogger builds a JSON production logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// New assembles the session store, CSRF protector and router described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	sessions := session.NewManager(store, session.Config{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		CookieMaxAge: cfg.Session.CookieMaxAge,
		Logger:       logger.Named("session"),
	})

	p, err := csrf.NewProtector(session.Resolver, csrf.Config{
		Limit:              cfg.CSRF.Limit,
		SessionKey:         cfg.CSRF.SessionKey,
		FormField:          cfg.CSRF.FormField,
		HeaderName:         cfg.CSRF.HeaderName,
		Methods:            cfg.CSRF.Methods,
		EnforceOriginCheck: cfg.CSRF.EnforceOriginCheck,
		AllowedOrigin:      cfg.CSRF.AllowedOrigin,
		Logger:             logger.Named("csrf"),
		Metrics:            csrf.NewMetrics(reg),
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating csrf protector: %w", err)
	}

	app.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      NewRouter(sessions, p, reg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return app, nil
}

func (a *App) openStore(ctx context.Context) (session.Store, error) {
	sc := a.cfg.Session
	switch sc.Backend {
	case config.BackendRedis:
		s := redisstore.New(redisstore.Config{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			PoolSize: sc.Redis.PoolSize,
			Prefix:   sc.Redis.Prefix,
			TTL:      sc.Redis.TTL,
		}, a.logger.Named("redis").Sugar())
		a.closers = append(a.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", sc.Redis.Addr, err)
		}
		return s, nil

	case config.BackendNATS:
		conn, err := nats.Connect(sc.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats at %s: %w", sc.NATS.URL, err)
		}
		a.closers = append(a.closers, func() error { conn.Close(); return nil })
		s, err := natsstore.New(conn, nats.KeyValueConfig{Bucket: sc.NATS.Bucket, TTL: sc.NATS.TTL})
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return memstore.New(sc.MemorySize)
	}
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", a.server.Addr), zap.String("session_backend", a.cfg.Session.Backend))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return <-errCh
}

// Close releases backend connections.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("closing backend", zap.Error(err))
		}
	}
	a.closers = nil
}
