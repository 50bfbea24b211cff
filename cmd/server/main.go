package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/config"
	"typingschool/identity/internal/crypto"
	"typingschool/identity/internal/db"
	identitygrpc "typingschool/identity/internal/grpc"
	internalhttp "typingschool/identity/internal/http"
	"typingschool/identity/internal/identity"
	"typingschool/identity/internal/jobs"
	"typingschool/identity/internal/metrics"
	"typingschool/identity/internal/repository"
	"typingschool/identity/internal/throttle"
)

type store interface {
	identity.DirectoryStore
	jobs.UserCounter
}

func main() {
	cfg := config.Load()

	stdr.SetVerbosity(cfg.LogVerbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("identity")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var users store
	switch cfg.StoreDriver {
	case "memory":
		logger.Info("using in-memory user store; data is lost on restart")
		users = repository.NewMemoryStore()
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, err, "db connection failed")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			fatal(logger, err, "db migration failed")
		}
		users = repository.NewStore(pool)
	default:
		fatal(logger, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver), "store init failed")
	}

	secret := cfg.SessionSecret
	if secret == "" {
		generated, err := crypto.NewSecret()
		if err != nil {
			fatal(logger, err, "session secret generation failed")
		}
		secret = generated
		logger.Info("SESSION_SECRET not set; using a random secret, sessions will not survive restarts")
	}
	codec, err := auth.NewCodec(secret, cfg.SessionIssuer, cfg.SessionTTL)
	if err != nil {
		fatal(logger, err, "session codec init failed")
	}
	hasher, err := crypto.NewHasher(crypto.Params{
		MemoryKB:    uint32(cfg.PasswordMemoryKB),
		Time:        uint32(cfg.PasswordTime),
		Parallelism: uint8(cfg.PasswordParallelism),
	})
	if err != nil {
		fatal(logger, err, "password hasher init failed")
	}

	var limiter throttle.Limiter = throttle.Noop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			fatal(logger, err, "redis ping failed")
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error(err, "redis close failed")
			}
		}()
		limiter = throttle.NewRedisLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow)
	} else {
		logger.Info("REDIS_ADDR not set; login throttling disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	service := identity.NewService(users, codec, identity.Options{
		Limiter: limiter,
		Metrics: m,
		Logger:  logger.WithName("session"),
	})
	directory := identity.NewDirectory(users, hasher)

	if cfg.BootstrapAdmin.Email != "" {
		created, err := directory.EnsureAdmin(ctx, cfg.BootstrapAdmin.Email, cfg.BootstrapAdmin.Password, cfg.BootstrapAdmin.Name)
		if err != nil {
			fatal(logger, err, "bootstrap admin failed")
		}
		if created {
			logger.Info("bootstrap admin created", "email", cfg.BootstrapAdmin.Email)
		}
	}

	jobDone := jobs.StartUserGaugeJob(ctx, cfg.UserGaugeInterval, users, m, logger.WithName("user-gauge"))

	server := internalhttp.NewServer(cfg, internalhttp.Deps{
		Service:   service,
		Directory: directory,
		Gatherer:  registry,
		Logger:    logger.WithName("http"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "http server error")
		}
	}()

	var grpcServer *grpc.Server
	if cfg.ServiceAuthToken != "" {
		serviceAuthInterceptor, err := identitygrpc.NewServiceAuthUnaryInterceptor(cfg.ServiceAuthToken)
		if err != nil {
			fatal(logger, err, "grpc service auth init failed")
		}
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(serviceAuthInterceptor))
		identitygrpc.RegisterSessionServiceServer(grpcServer, identitygrpc.NewSessionServer(service, directory))
		healthServer := health.NewServer()
		healthServer.SetServingStatus(identitygrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		go func() {
			listener, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				fatal(logger, err, "grpc listen error")
			}
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(listener); err != nil {
				fatal(logger, err, "grpc server error")
			}
		}()
	} else {
		logger.Info("SERVICE_AUTH_TOKEN not set; grpc session service disabled")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "shutdown error")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	<-jobDone
}

func fatal(logger logr.Logger, err error, msg string) {
	logger.Error(err, msg)
	os.Exit(1)
}
