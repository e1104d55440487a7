package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/index"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	gobreaker "github.com/sony/gobreaker/v2"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes flush badger and bluge.
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

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	rooms := storage.NewRoomRepository(db, logger)
	messages := storage.NewBreakerStore(logger, storage.NewMessageRepository(db, logger), storage.BreakerSettings{
		FailureThreshold: uint32(config.BreakerFailures),
		OpenTimeout:      config.BreakerOpenTimeout,
		HalfOpenRequests: uint32(config.BreakerHalfOpenRequest),
	})
	cursors := storage.NewCursorRepository(db)
	messageIndex := index.NewMessageIndex(blugeWriter, logger)

	// 3. Supervision & Orchestration
	monitoring := observability.NewMonitoringManager()
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, runtime.Settings{
		MaxContentLength:  config.MaxContentLength,
		HistoryLimit:      config.LimitMessages,
		ReplayLimit:       config.ReplayLimit,
		SearchLimit:       config.SearchLimit,
		TypingExpiry:      config.TypingExpiry,
		SessionBufferSize: config.ConnectionBufferSize,
		IndexBufferSize:   config.BufferSize,
		StatsInterval:     config.MetricInterval,
	}, sup, auth.NewRoomAuthorizer(rooms, config.Admins()), rooms, messages, cursors, messageIndex, monitoring)

	healthServer := server.NewHealthServer(logger, func() bool {
		return messages.State() != gobreaker.StateOpen
	}, config.MetricInterval)
	sup.Add(healthServer)

	errChan := make(chan error, 3)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	// 4. HTTP (websocket + REST + metrics)
	tokens := auth.NewTokens(config.JwtSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(logger, orchestrator)
	wsHandler := websocket.NewHandler(logger, tokens, chatService, websocket.Settings{
		AllowedOrigins:  config.Origins(),
		FramesPerSecond: config.FramesPerSecond,
		FrameBurst:      config.FrameBurst,
		ReplyBuffer:     config.ConnectionBufferSize,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           api.NewRouter(logger, tokens, chatService, wsHandler, monitoring, config.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 5. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer.Register(grpcServer)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. Badger inspector, debug only
	var debugServer *http.Server
	if logger.Enabled(ctx, slog.LevelDebug) {
		debugServer = internal.NewDebugServer(logger, db, config.DebugPort, storage.InspectMapper, func() map[string]any {
			stats := monitoring.GetLatest()
			return map[string]any{
				"Sessions": stats.ActiveSessions,
				"Channels": stats.ActiveChannels,
				"Typing":   stats.TypingStates,
			}
		})
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		go func() {
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Debug server stopped", "error", err)
			}
		}()
	}

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	<-orchestratorDone
	logger.Info("Program stopped cleanly")
	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
