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
	"github.com/panyam/whisper/oauth2"
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
	if err := cfg.ValidateServer(); err != nil {
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

	renderer, err := whisper.NewRenderer()
	if err != nil {
		return err
	}

	sessions := whisper.NewSessionManager(stores.Users, stores.Sessions, cfg.SessionLifetime, cfg.SecureCookies)
	reconciler := whisper.NewReconciler(stores.Users, whisper.BcryptCodec{})

	var google *oauth2.GoogleOAuth2
	if cfg.GoogleEnabled() {
		google = oauth2.NewGoogleOAuth2(cfg.ClientID, cfg.ClientSecret, cfg.CallbackURL, nil)
		google.States = oauth2.NewStateSigner(cfg.StateKey(), 0)
		google.SecureCookies = cfg.SecureCookies
	} else {
		slog.Info("CLIENT_ID not set, Google sign-in disabled")
	}

	app := whisper.NewApp(sessions, reconciler, renderer, google)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server started", "addr", srv.Addr)
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
