package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bankist-ledger/internal/config"
	"bankist-ledger/internal/handler"
	"bankist-ledger/internal/metrics"
	"bankist-ledger/internal/repository"
	"bankist-ledger/internal/service"
	"bankist-ledger/internal/session"
)

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	redis  *redis.Client
	logger *zap.Logger
	port   string
}

// NewServer connects to storage, wires the ledger and returns a server
// that is ready to Start.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := repository.RunMigrations(logger, cfg.GetMigrationURL()); err != nil {
			db.Close()
			return nil, err
		}
	}

	sessions, redisClient, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	collector := metrics.New()
	store := repository.NewStore(db, logger)

	accountService := service.NewAccountService(store, sessions, logger)
	ledgerService := service.NewLedgerService(store, collector, logger)

	router := newRouter(routerDeps{
		accounts:  accountService,
		ledger:    ledgerService,
		collector: collector,
		limiter:   newLoginLimiter(cfg.LoginRatePerSec, cfg.LoginBurst),
		health:    db.PingContext,
		logger:    logger,
	})

	return &Server{
		router: router,
		db:     db,
		redis:  redisClient,
		logger: logger,
	}, nil
}

func openDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	ping := func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("Database not reachable yet", zap.String("host", cfg.DBHost), zap.Error(err))
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.DBConnectRetries), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Successfully connected to database", zap.String("host", cfg.DBHost), zap.String("database", cfg.DBName))
	return db, nil
}

// newSessionStore uses Redis when REDIS_ADDR is set and an in-process store
// otherwise.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory session store", zap.Duration("ttl", cfg.SessionTTL))
		return session.NewMemoryStore(cfg.SessionTTL), nil, nil
	}

	var client *redis.Client
	connect := func() error {
		c, err := session.NewRedisClient(ctx, session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("Redis not reachable yet", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return err
		}
		client = c
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.DBConnectRetries), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Using redis session store", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.SessionTTL))
	return session.NewRedisStore(client, cfg.SessionTTL), client, nil
}

type routerDeps struct {
	accounts  handler.AccountService
	ledger    handler.LedgerEngine
	collector *metrics.Collector
	limiter   *loginLimiter
	health    func(ctx context.Context) error
	logger    *zap.Logger
}

func newRouter(deps routerDeps) *mux.Router {
	authHandler := handler.NewAuthHandler(deps.accounts)
	accountHandler := handler.NewAccountHandler(deps.accounts)
	ledgerHandler := handler.NewLedgerHandler(deps.ledger, deps.accounts, deps.logger)

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(deps.logger))
	router.Use(metricsMiddleware(deps.collector))

	router.HandleFunc("/api/login", deps.limiter.wrap(authHandler.Login)).Methods(http.MethodPost)
	router.HandleFunc("/api/logout", authHandler.Logout).Methods(http.MethodPost)
	router.HandleFunc("/api/users/{account_id}", ledgerHandler.CloseAccount).Methods(http.MethodDelete)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(handler.RequireSession(deps.accounts))
	api.HandleFunc("/accounts/{account_id}/movements", accountHandler.GetMovements).Methods(http.MethodGet)
	api.HandleFunc("/movements/{account_id}", accountHandler.GetMovements).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{account_id}/summary", accountHandler.GetSummary).Methods(http.MethodGet)
	api.HandleFunc("/transfer", ledgerHandler.Transfer).Methods(http.MethodPost)
	api.HandleFunc("/loan", ledgerHandler.RequestLoan).Methods(http.MethodPost)

	router.HandleFunc("/health", healthHandler(deps.health)).Methods(http.MethodGet)
	router.Handle("/metrics", deps.collector.Handler()).Methods(http.MethodGet)

	return router
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", zap.String("port", s.port))

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed", zap.Error(err))
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, then releases storage connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

func (s *Server) GetPort() string {
	return s.port
}

func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer builds and starts a server. A nil logger discards output.
func StartServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(ctx)
		return nil, "", err
	}

	return server, port, nil
}
