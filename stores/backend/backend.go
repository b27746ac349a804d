//go:build !wasm
// +build !wasm

// Package backend opens the user and session stores named by a store URL.
//
//	file://<dir>                            JSON files, in-memory sessions
//	sqlite://<path>                         SQLite via GORM, persistent sessions
//	datastore://<project>?namespace=<ns>    Cloud Datastore, in-memory sessions
//
// sqlite mode also starts a background goroutine that sweeps expired sessions;
// Backend.Close stops it. The other modes start no background work.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/panyam/whisper"
	fsstore "github.com/panyam/whisper/stores/fs"
	gaestore "github.com/panyam/whisper/stores/gae"
	gormstore "github.com/panyam/whisper/stores/gorm"
)

const sessionSweepInterval = 5 * time.Minute

// Backend bundles the stores behind one STORE_URL
type Backend struct {
	Users    whisper.UserStore
	Sessions scs.Store

	closers []func() error
}

// Close releases connections and stops background sweeps
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open creates the stores for a store URL
func Open(ctx context.Context, storeURL string) (*Backend, error) {
	scheme, rest, ok := strings.Cut(storeURL, "://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid store url %q", storeURL)
	}
	switch scheme {
	case "file":
		return openFS(rest)
	case "sqlite":
		return openSQLite(rest)
	case "datastore":
		return openDatastore(ctx, rest)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", scheme)
	}
}

func withMemorySessions(b *Backend) *Backend {
	sessions := memstore.New()
	b.Sessions = sessions
	b.closers = append(b.closers, func() error {
		sessions.StopCleanup()
		return nil
	})
	return b
}

func openFS(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	slog.Info("Using file store", "dir", dir)
	return withMemorySessions(&Backend{Users: fsstore.NewUserStore(dir)}), nil
}

func openSQLite(path string) (*Backend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection serializes writes in-process
	sqlDB.SetMaxOpenConns(1)

	if err := gormstore.AutoMigrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	slog.Info("Using sqlite store", "path", path)

	sessions := gormstore.NewSessionStore(db)
	stopSweep := sessions.StartCleanup(sessionSweepInterval)
	return &Backend{
		Users:    gormstore.NewUserStore(db),
		Sessions: sessions,
		closers: []func() error{
			sqlDB.Close,
			func() error { stopSweep(); return nil },
		},
	}, nil
}

func openDatastore(ctx context.Context, rest string) (*Backend, error) {
	project, rawQuery, _ := strings.Cut(rest, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid datastore options: %w", err)
	}
	client, err := datastore.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore client: %w", err)
	}
	namespace := query.Get("namespace")
	slog.Info("Using datastore", "project", project, "namespace", namespace)
	b := &Backend{
		Users:   gaestore.NewUserStore(client, namespace),
		closers: []func() error{client.Close},
	}
	return withMemorySessions(b), nil
}
