package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"execution-core/internal/api"
	"execution-core/internal/botconfig"
	"execution-core/internal/engine"
	"execution-core/internal/events"
	"execution-core/internal/gateway"
	"execution-core/internal/monitor"
	"execution-core/internal/order"
	"execution-core/internal/risk"
	"execution-core/pkg/cache"
	"execution-core/pkg/config"
	exchange "execution-core/pkg/exchanges/common"
	"execution-core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "execution-core: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Dev: cfg.LogDev})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	log.Info("starting execution core",
		zap.String("version", buildVersion),
		zap.String("port", cfg.Port),
		zap.String("venue", cfg.Venue))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	sysMetrics := monitor.NewSystemMetrics()

	// Venue selection
	venue, err := gateway.DefaultFactory(ctx, cfg, log)
	if err != nil {
		return err
	}
	if venue.Background != nil {
		go venue.Background(ctx)
	}

	var gw exchange.Gateway = venue.Gateway
	if cfg.VenueRateLimit > 0 {
		gw = exchange.NewRateLimitedGateway(gw, cfg.VenueRateLimit, cfg.VenueRateBurst, log.Named("ratelimit"))
	}

	sessionCfg := gateway.DefaultConfig()
	sessionCfg.HealthInterval = cfg.SessionHealth
	sessionCfg.FailureThreshold = cfg.SessionFailLimit
	session := gateway.NewManager(venue.Session, sessionCfg, bus, sysMetrics, log.Named("session"))
	session.Start(ctx)
	gw = gateway.NewSessionGateway(gw, session, sysMetrics)
	gw = gateway.NewSymbolCachingGateway(gw, cache.NewShardedSymbolCache(cache.DefaultCapacity, cfg.SymbolCacheTTL))

	// Submission engine, position closer and trailing supervisor share one gateway chain.
	executor := order.NewExecutor(gw, bus, sysMetrics, log.Named("executor"))
	executor.MaxAttempts = cfg.SubmitMaxAttempts
	executor.RetryDelay = cfg.RetryDelay
	closer := order.NewCloser(gw, executor, bus, log.Named("closer"))
	supervisor := risk.NewSupervisor(gw, executor, bus, sysMetrics, log.Named("trailing"))
	supervisor.Interval = cfg.TrailInterval
	trailer := risk.NewTrailer(supervisor)

	// Bot registry
	registry := botconfig.NewRegistry()
	if err := loadBots(registry, cfg.BotsFile, log); err != nil {
		return abortStartup(err, session.Stop, venue.Closer.Close)
	}

	engService, err := engine.NewImpl(ctx, engine.Config{
		Registry:  registry,
		Gateway:   gw,
		Executor:  executor,
		Closer:    closer,
		Trailer:   trailer,
		Session:   session,
		Bus:       bus,
		Logger:    log.Named("engine"),
		Resources: []io.Closer{venue.Closer},
		Meta: engine.SystemStatus{
			Venue:   venue.Name,
			Version: buildVersion,
		},
	})
	if err != nil {
		return abortStartup(fmt.Errorf("start engine: %w", err), session.Stop, venue.Closer.Close)
	}

	alerts := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{Logger: log.Named("alerts")}, Logger: log}
	alerts.Start(ctx)

	// API
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Options{
		Engine:          engService,
		Bus:             bus,
		Metrics:         sysMetrics,
		Logger:          log.Named("api"),
		JWTSecret:       cfg.JWTSecret,
		APIKeyHash:      cfg.APIKeyHash,
		TokenTTL:        cfg.TokenTTL,
		RateLimitPerSec: cfg.RateLimitPerSec,
		RateLimitBurst:  cfg.RateLimitBurst,
		RequestTimeout:  cfg.RequestTimeout,
	})
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; API routes are unauthenticated")
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 2)
	go func() {
		log.Info("api listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("api server: %w", err)
		}
	}()

	var healthServer *api.HealthServer
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return multierr.Append(fmt.Errorf("grpc health listen: %w", err), engService.Close())
		}
		healthServer = api.NewHealthServer(log.Named("grpc_health"))
		go healthServer.Track(ctx, cfg.SessionHealth, session.Healthy)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := healthServer.Serve(lis); err != nil {
				serveErr <- fmt.Errorf("grpc health: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-serveErr:
		log.Error("server failed; shutting down", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	runErr = multierr.Append(runErr, httpServer.Shutdown(shutdownCtx))
	if healthServer != nil {
		healthServer.Stop()
	}
	cancel()
	runErr = multierr.Append(runErr, engService.Close())
	log.Info("shutdown complete")
	return runErr
}

// loadBots fills registry from path. A missing file leaves the registry empty.
func loadBots(registry *botconfig.Registry, path string, log *zap.Logger) error {
	bots, err := botconfig.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("bots file not found; starting with an empty registry", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bots: %w", err)
	}
	if err := registry.RegisterAll(bots); err != nil {
		return fmt.Errorf("register bots: %w", err)
	}
	log.Info("bots loaded", zap.Int("count", len(bots)), zap.String("path", path))
	return nil
}

// abortStartup runs every release step in order and joins their errors onto err.
func abortStartup(err error, release ...func() error) error {
	for _, fn := range release {
		err = multierr.Append(err, fn())
	}
	return err
}
