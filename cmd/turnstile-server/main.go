package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/turnstile/internal/auth"
	"github.com/BrandonDHaskell/turnstile/internal/config"
	"github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/httpapi"
	"github.com/BrandonDHaskell/turnstile/internal/logging"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store/memory"
	sqlitestore "github.com/BrandonDHaskell/turnstile/internal/turnstile/store/sqlite"
)

const serviceName = "turnstile-server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	envFile := pflag.String("env-file", ".env", "dotenv file read before the environment")
	gatesFile := pflag.String("gates-file", "", "YAML gate definitions (overrides TURNSTILE_GATES_FILE)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *gatesFile != "" {
		cfg.GatesFile = *gatesFile
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", serviceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	// Store
	var st store.Store
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		st = memory.New()
	default:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		if cfg.IsDev() {
			if err := db.SeedDev(ctx, conn); err != nil {
				return err
			}
		}
		writer := db.NewWorker(conn)
		defer writer.Close()
		st = sqlitestore.New(conn, writer)
		logger.Info("sqlite store ready", zap.String("path", cfg.DBPath))
	}

	// Services
	tokens := service.NewTokenRegistry(st, service.AccountDefaults{
		TxLimitCents:    cfg.TxLimit(),
		DailyLimitCents: cfg.DailyLimit(),
	}, logger.Named("tokens"))
	identities := service.NewIdentityDirectory(st, logger.Named("identities"))
	gates := service.NewGateRegistry(st, logger.Named("gates"))
	ledger := service.NewLedger(st, logger.Named("ledger"))
	stats := service.NewStatsAggregator(st, service.StatsConfig{
		Interval: cfg.StatsRefreshInterval,
		Timeout:  cfg.StatsTimeout,
	}, logger.Named("stats"))
	access := service.NewAccessService(tokens, identities, gates, st, stats, logger.Named("access"))

	if cfg.Store == config.StoreMemory && cfg.IsDev() {
		n, err := gates.SeedDev(ctx)
		if err != nil {
			return err
		}
		logger.Info("dev gates seeded", zap.Int("count", n))
	}

	if cfg.GatesFile != "" {
		n, err := gates.LoadFile(ctx, cfg.GatesFile)
		if err != nil {
			return fmt.Errorf("load gates: %w", err)
		}
		logger.Info("gates loaded", zap.String("file", cfg.GatesFile), zap.Int("count", n))
	}

	stats.Start(ctx)
	defer stats.Stop()

	signer, err := auth.NewSigner(cfg.JWTSecret)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("signing bearer tokens with the built-in dev secret")
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger.Named("http"),
		Addr:       cfg.HTTPAddr,
		Signer:     signer,
		Tokens:     tokens,
		Identities: identities,
		Gates:      gates,
		Ledger:     ledger,
		Access:     access,
	})

	// gRPC health
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
		logger.Error("server failed", zap.Error(runErr))
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	return runErr
}
