package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/handlers"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger

	store     *store.Handle
	mq        *mq.MQ
	telemetry *telemetry.Providers
}

// New constructs a Server from cfg. Resources acquired before a failure
// are released before returning.
func New(ctx context.Context, cfg config.Config) (_ *Server, err error) {
	s := &Server{}
	defer func() {
		if err != nil {
			_ = s.release(context.Background())
		}
	}()

	if s.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	s.logger = logging.New(cfg.LogLevel, s.telemetry.Logger)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, errors.New("JWT_SECRET is required")
	}

	if s.store, err = store.Open(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if s.mq, err = mq.Open(ctx, cfg.MQ); err != nil {
		return nil, fmt.Errorf("mq: %w", err)
	}

	userService := services.NewUserService(
		s.store.Users,
		tokens,
		auth.NewBcryptHasher(0),
		services.WithAdminSignup(cfg.Auth.AllowAdminSignup),
		services.WithUserLogger(s.logger),
	)

	inventoryOpts := []services.InventoryOption{services.WithInventoryLogger(s.logger)}
	if s.mq != nil {
		inventoryOpts = append(inventoryOpts, services.WithStockEvents(s.mq, cfg.MQ.Channel))
	}
	inventory := services.NewInventoryService(s.store.Sweets, inventoryOpts...)

	health := handlers.NewHealthHandler(handlers.PingChecker{
		Component: "store",
		Ping:      s.store.Ping,
	})

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		accessLog(s.logger),
		middleware.Recoverer,
		nameSpan,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", health.Readyz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, s.logger)
	})
	router.Route("/sweets", func(r chi.Router) {
		handlers.SweetRouter(r, inventory, handlers.Authenticate(userService, s.logger), s.logger)
	})
	s.router = router

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server configured",
		zap.Int("port", port),
		zap.String("store", s.store.Backend),
		zap.Bool("stock_events", s.mq != nil),
		zap.Bool("telemetry", cfg.Telemetry.Enabled()),
	)
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Logger returns the server's structured logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires, then releases the store, broker and telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	return errors.Join(err, s.release(ctx))
}

func (s *Server) release(ctx context.Context) error {
	var err error
	if s.mq != nil {
		err = errors.Join(err, s.mq.Close())
	}
	if s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	if s.telemetry != nil {
		err = errors.Join(err, s.telemetry.Shutdown(ctx))
	}
	return err
}
