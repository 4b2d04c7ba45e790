package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinesync/internal/core/services"
	httphandlers "cinesync/internal/handlers/http"
	"cinesync/internal/infrastructure/gateway"
	"cinesync/internal/infrastructure/middleware"
	"cinesync/internal/infrastructure/monitoring"
	"cinesync/internal/infrastructure/registry"
	"cinesync/internal/infrastructure/repositories"
	"cinesync/pkg/config"
	"cinesync/pkg/logger"
	"cinesync/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Party store: Redis when enabled, memory otherwise
	store := repositories.NewPartyRepository(cfg, log)
	defer store.Close()

	// Monitoring
	collector := monitoring.NewPrometheusCollector()
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("party_store", store.Ping, 2*time.Second)

	// Core wiring: one registry per process, injected into the engine
	rooms := registry.NewRoomRegistry(log)
	partyService := services.NewPartyService(store, services.PartyConfig{
		TTL:          cfg.Party.TTL,
		CodeLength:   cfg.Party.CodeLength,
		BcryptCost:   cfg.Party.BcryptCost,
		TicketSecret: cfg.Party.TicketSecret,
		TicketTTL:    cfg.Party.TicketTTL,
	}, log)
	engine := services.NewSyncEngine(store, rooms, partyService, cfg.Party.ChatHistoryLimit, collector, log)

	// Session gateway
	wsServer := gateway.NewWebSocketServer(engine, gateway.Options{
		PingInterval:      cfg.Gateway.PingInterval,
		ReadTimeout:       cfg.Gateway.ReadTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		SendQueueSize:     cfg.Gateway.SendQueueSize,
		MessagesPerSecond: cfg.Gateway.MessagesPerSecond,
		MessageBurst:      cfg.Gateway.MessageBurst,
	}, collector, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	partyHandler := httphandlers.NewPartyHandler(partyService, rooms)
	partyHandler.SetupRoutes(router)

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status.Status,
			"timestamp":   status.Timestamp,
			"uptime":      time.Since(startTime).String(),
			"connections": wsServer.ConnectionCount(),
			"rooms":       rooms.Rooms(),
			"checks":      status.Checks,
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting cinesync server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down cinesync server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Sweep the registry first, then drop the transport connections:
	// no session may absorb broadcasts for a socket that is going away.
	rooms.Shutdown()
	wsServer.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http server shutdown failed", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("tracer shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
