package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpc3 "github.com/mama165/sdk-go/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 15 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal or a server failure, then
// shuts everything down in reverse order. Deferred closes run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// 3. Stores
	stores, err := openStores(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing stores...")
		_ = stores.Close()
	}()

	// 4. Bus & Orchestration
	var nc *nats.Conn
	if config.BusDriver == internal.BusNats {
		nc, err = runtime.ConnectNats(logger, config.NatsURL, "chat-relay")
		if err != nil {
			return exitRuntime, err
		}
		defer func() {
			logger.Info("Draining NATS connection...")
			_ = nc.Drain()
		}()
	}
	supervisor := workers.NewSupervisor(logger, config.RestartInterval, metrics.WorkerRestarts)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, metrics, runtime.OrchestratorOptions{
		RegistryShards:    config.RegistryShards,
		HeartbeatInterval: config.HeartbeatInterval,
		Nats:              nc,
		SubjectPrefix:     config.NatsSubjectPrefix,
	})

	presence := runtime.NewPresenceTracker(logger, stores.Users, metrics.CounterClamps)
	decider := services.NewNotificationService(logger, presence, stores.Notifications, orchestrator.Bus(), metrics)
	router := services.NewRouterService(logger, orchestrator.Bus(), stores.Users, stores.Conversations, decider)
	tokens := auth.NewTokenManager(config.JWTSecret, config.JWTIssuer)

	// 5. HTTP: websocket, hooks, notifications, metrics
	wsServer := websocket.NewServer(ctx, logger, websocket.Options{
		Session: websocket.SessionConfig{
			AuthTimeout:  config.AuthTimeout,
			PingInterval: config.PingInterval,
			WriteTimeout: config.WriteTimeout,
			StoreTimeout: config.StoreTimeout,
			QueueSize:    config.ConnectionBufferSize,
		},
		PongWait:      config.PongWait,
		MaxFrameBytes: int64(config.MaxFrameBytes),
	}, websocket.Services{
		Verifier:      tokens,
		Registry:      orchestrator.Registry(),
		Presence:      presence,
		Conversations: stores.Conversations,
		Notifications: stores.Notifications,
		Metrics:       metrics,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat/", wsServer)
	mux.Handle("GET /ws", wsServer)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	rest.NewHooks(logger, router, config.InternalToken).Register(mux)
	rest.NewNotificationsAPI(logger, tokens, stores.Notifications).Register(mux)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// 6. gRPC health probe
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errChan := make(chan error, 3)

	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP server", "address", address, "store", config.StoreDriver, "bus", orchestrator.Backend())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting gRPC health server", "address", healthAddress)
		if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown: stop accepting, close sessions (presence -1), stop workers
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still open at shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop(shutdownCtx)
	logger.Info("Program stopped cleanly")

	return code, runErr
}

