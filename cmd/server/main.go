package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/credentials"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaychat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)

	store, err := credentials.LoadFile(cfg.UsersFile)
	if err != nil {
		return exitConfig, err
	}
	logger.Info("Credentials loaded", "file", cfg.UsersFile, "users", store.Len())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := server.NewHub(store, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener := server.NewListener(hub, transport.Options{
		MaxLineSize:  cfg.MaxMessageSize,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)

	httpServer := server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(server.NewHandlers(hub, cfg, logger), reg))

	errCh := make(chan error, 2)
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := listener.ListenAndServe(ctx, cfg.TCPAddr); err != nil {
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	})
	wg.Go(func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		logger.Error("Server failed", "error", runErr)
		stop()
	}

	shutdownErr := errors.Join(
		server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger),
		hub.Shutdown(cfg.ShutdownTimeout),
	)
	wg.Wait()

	if runErr != nil {
		return exitRuntime, runErr
	}
	if shutdownErr != nil {
		return exitRuntime, shutdownErr
	}
	logger.Info("Server stopped")
	return exitOK, nil
}
