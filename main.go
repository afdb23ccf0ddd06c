package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-unlock/internal/auth"
	"github.com/example/face-unlock/internal/config"
	"github.com/example/face-unlock/internal/grpchealth"
	"github.com/example/face-unlock/internal/handlers"
	"github.com/example/face-unlock/internal/logging"
	"github.com/example/face-unlock/internal/metrics"
	"github.com/example/face-unlock/internal/profile"
	"github.com/example/face-unlock/internal/repository"
	"github.com/example/face-unlock/internal/signature"
	"github.com/example/face-unlock/internal/similarity"
	"github.com/example/face-unlock/internal/usecase"
)

func main() {
	configPath := flag.String("config", os.Getenv("FACEUNLOCK_CONFIG"), "path to a YAML config file")
	healthcheck := flag.Bool("healthcheck", false, "probe the gRPC health service and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if *healthcheck {
		if err := grpchealth.Check(context.Background(), probeAddr(cfg.GRPC.Addr), logger); err != nil {
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, closeBackend := initBackend(ctx, cfg, logger)
	defer closeBackend()

	store := profile.NewStore(backend, logger)
	if err := store.LoadAll(ctx); err != nil {
		logger.Warn("starting with no registered faces", zap.Error(err))
	}

	tracker := metrics.NewTracker(cfg.Storage.MetricsFile, logger)
	if err := tracker.Load(); err != nil {
		logger.Warn("metrics reset", zap.Error(err))
	}

	scorer, err := similarity.NewScorer(cfg.Matcher.Threshold)
	if err != nil {
		logger.Fatal("invalid matcher threshold", zap.Error(err))
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("invalid auth settings", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	cache := initCache(redisCtx, cfg.Redis.Addr, logger)

	uc := usecase.NewUnlockUseCase(usecase.Dependencies{
		Store:     store,
		Images:    profile.NewImageDir(cfg.Storage.ImageDir),
		Extractor: signature.NewExtractor(),
		Scorer:    scorer,
		Recorder:  tracker,
		Metrics:   tracker,
		Cache:     cache,
		Tokens:    issuer,
		ResultTTL: cfg.Redis.ResultTTL,
	}, logger)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	r.Use(handlers.CORSMiddleware(cfg.Server.CORSOrigins))

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	handlers.RegisterRoutes(r, uc, authMiddleware, cfg.Server.MaxUploadBytes)

	if cfg.GRPC.Addr != "" {
		healthServer, err := startHealthServer(cfg.GRPC.Addr, logger)
		if err != nil {
			logger.Fatal("failed to start health service", zap.Error(err))
		}
		defer healthServer.Stop()
		healthServer.SetServing(true)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("face unlock API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("profiles", store.Len()),
		zap.Float64("threshold", scorer.Threshold()),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (profile.Persistence, func()) {
	var driver, dsn string
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		driver, dsn = repository.DriverSQLite, cfg.Storage.SQLitePath
	case config.BackendPostgres:
		driver, dsn = repository.DriverPostgres, cfg.Storage.PostgresDSN
	default:
		return profile.NewFileBackend(cfg.Storage.ProfilesFile), func() {}
	}

	db, err := repository.Open(ctx, driver, dsn, logger)
	if err != nil {
		logger.Error("failed to connect to database, registrations will not be saved", zap.Error(err), zap.String("driver", driver))
		return profile.UnavailableBackend{Target: driver, Err: err}, func() {}
	}

	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	repo := repository.NewProfileRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Error("auto migrate failed, registrations will not be saved", zap.Error(err), zap.String("driver", driver))
		closeDB()
		return profile.UnavailableBackend{Target: driver, Err: err}, func() {}
	}
	return repo, closeDB
}

func initCache(ctx context.Context, addr string, logger *zap.Logger) usecase.Cache {
	if addr == "" {
		return usecase.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, caching results in memory", zap.Error(err), zap.String("addr", addr))
		_ = client.Close()
		return usecase.NewMemoryCache()
	}
	return usecase.NewRedisCache(client)
}

func startHealthServer(addr string, logger *zap.Logger) (*grpchealth.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := grpchealth.NewServer(logger)
	go func() {
		if err := s.Serve(lis); err != nil {
			logger.Error("health service stopped", zap.Error(err))
		}
	}()
	return s, nil
}

// probeAddr turns a listen address such as ":9090" into a dialable one.
func probeAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
