package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panyam/whisper"
	"github.com/panyam/whisper/stores/backend"
)

func main() {
	cfg, err := whisper.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := whisper.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	slog.SetDefault(logger)
	if err := cfg.ValidateVault(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func run(ctx context.Context, cfg *whisper.Config) error {
	stores, err := backend.Open(ctx, cfg.StoreURL)
	if err != nil {
		return err
	}
	defer stores.Close()

	codec, err := whisper.NewFernetCodec(cfg.EncryptionKeys...)
	if err != nil {
		return err
	}
	renderer, err := whisper.NewRenderer()
	if err != nil {
		return err
	}

	vault := whisper.NewVault(whisper.NewReconciler(stores.Users, codec), renderer)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           vault.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Vault started", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}
