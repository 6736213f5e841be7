// Command ga-server starts the account API (HTTP) and the ops gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/migrate"
	"github.com/and161185/goph-auth/internal/repository/postgres"
	"github.com/and161185/goph-auth/internal/repository/redis"
	grpcserver "github.com/and161185/goph-auth/internal/server/grpc"
	httpserver "github.com/and161185/goph-auth/internal/server/http"
	"github.com/and161185/goph-auth/internal/service"
	"github.com/and161185/goph-auth/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("ops", cfg.Ops.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DB.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// Stores
	db, err := postgres.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	refreshStore := redis.NewRefreshStore(rdb)

	// Services
	hasher, err := crypto.NewHasher(cfg.Hash.Cost, crypto.DjangoVerifier{})
	if err != nil {
		logger.Fatal("hasher", zap.Error(err))
	}
	accounts, err := service.NewAccounts(ctx, postgres.NewAccountRepo(db), crypto.NewBounded(hasher, cfg.Hash.Concurrency), logger)
	if err != nil {
		logger.Fatal("accounts", zap.Error(err))
	}
	issuer, err := token.NewIssuer([]byte(cfg.JWT.Key), cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}
	authSvc := service.NewAuthService(accounts, issuer, refreshStore, logger)

	// HTTP API
	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpserver.New(authSvc, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Ops gRPC: health + reflection (dev)
	var opts []grpc.ServerOption
	if cfg.TLS.Enabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	ops, hs := grpcserver.NewOps(logger, cfg.Dev, opts...)
	go grpcserver.Watch(ctx, logger, hs, cfg.Ops.CheckInterval,
		grpcserver.Check{Name: "postgres", Probe: db.Ping},
		grpcserver.Check{Name: "redis", Probe: refreshStore.Ping},
	)

	lis, err := net.Listen("tcp", cfg.Ops.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("ops listening", zap.String("addr", cfg.Ops.Addr))
		errCh <- ops.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.Bool("tls", cfg.TLS.Enabled()))
		var err error
		if cfg.TLS.Enabled() {
			err = srv.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdown(logger, srv, ops, cfg.HTTP.ShutdownTimeout)
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		shutdown(logger, srv, ops, cfg.HTTP.ShutdownTimeout)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func shutdown(logger *zap.Logger, srv *http.Server, ops *grpc.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		ops.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		ops.Stop()
	}
}
