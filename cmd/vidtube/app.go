package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/vidtube/internal/blobstore"
	"github.com/nkiryanov/vidtube/internal/blobstore/s3store"
	"github.com/nkiryanov/vidtube/internal/db"
	"github.com/nkiryanov/vidtube/internal/handlers"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/metrics"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/repository/memory"
	"github.com/nkiryanov/vidtube/internal/repository/postgres"
	"github.com/nkiryanov/vidtube/internal/repository/redisstore"
	"github.com/nkiryanov/vidtube/internal/service/account"
	"github.com/nkiryanov/vidtube/internal/service/auth"
	"github.com/nkiryanov/vidtube/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/vidtube/internal/service/sweeper"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Sweeper    *sweeper.Sweeper
	Logger     logger.Logger

	// Release connections; called once server stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config. Err: %w", err)
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, Logger: l}

	storage, err := app.initStorage(ctx, c)
	if err != nil {
		app.Close()
		return nil, err
	}

	uploader, static, err := initUploader(ctx, c)
	if err != nil {
		app.Close()
		return nil, err
	}

	reg := metrics.NewRegistry()
	authMetrics := metrics.NewAuth(reg)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	}, storage)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	accountService := account.NewService(auth.DefaultHasher, storage, uploader, l)
	authService, err := auth.NewService(auth.Config{Metrics: authMetrics}, tokenManager, accountService)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Sweeper = sweeper.New(sweeper.Config{
		Interval: c.SweepInterval,
		Metrics:  authMetrics,
	}, storage.Refresh(), l)

	routes := []handlers.Route{{Pattern: "GET /metrics", Handler: metrics.Handler(reg)}}
	if static != nil {
		routes = append(routes, *static)
	}
	app.Handler = handlers.NewRouter(authService, accountService, l, routes...)

	return app, nil
}

// Accounts live in postgres or in memory; refresh tokens may be moved to redis or memory
func (s *ServerApp) initStorage(ctx context.Context, c *Config) (repository.Storage, error) {
	var storage repository.Storage

	if c.DatabaseDSN == "" {
		s.Logger.Warn("Database not configured, accounts are kept in memory")
		storage = memory.NewStorage()
	} else {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		storage = postgres.NewStorage(pool)
	}

	switch c.RefreshStore {
	case RefreshStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		s.closers = append(s.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
		}
		storage = repository.WithRefreshRepo(storage, redisstore.NewRefreshTokenRepo(client, ""))
	case RefreshStoreMemory:
		if c.DatabaseDSN != "" {
			storage = repository.WithRefreshRepo(storage, memory.NewRefreshTokenRepo())
		}
	}

	return storage, nil
}

// Media goes to S3 if bucket configured; otherwise to local dir served under /static/
func initUploader(ctx context.Context, c *Config) (blobstore.Uploader, *handlers.Route, error) {
	if c.S3.Bucket != "" {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:  c.S3.Endpoint,
			Region:    c.S3.Region,
			Bucket:    c.S3.Bucket,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			Prefix:    c.S3.Prefix,
			PublicURL: c.S3.PublicURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("error while creating s3 client. Err: %w", err)
		}
		return store, nil, nil
	}

	local := &blobstore.Local{Dir: c.MediaDir, BaseURL: c.MediaURL}
	route := &handlers.Route{
		Pattern: "GET /static/",
		Handler: noSniff(http.StripPrefix("/static/", http.FileServer(http.Dir(c.MediaDir)))),
	}
	return local, route, nil
}

// Browser must not guess type of served media
func noSniff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and sweeper; both stop gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.Sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}
