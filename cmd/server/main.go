package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/PrajwalShete/chat-app-v4/internal/server"
	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup always executes. Faults
// scoped to a single connection are logged and contained inside the server
// package; anything reaching here is non-recoverable and exits non-zero.
func run() error {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := badger.Open(badger.DefaultOptions(cfg.DataDir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("closing badger database")
		_ = db.Close()
	}()

	chatServer := server.NewChatServer(cfg, store.NewBadgerStore(db), logger)
	chatServer.Start()

	httpServer := server.CreateServer(cfg.Port, chatServer.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn("http shutdown did not complete cleanly", "error", err)
	}
	if err := chatServer.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown did not complete cleanly", "error", err)
	}

	return nil
}
