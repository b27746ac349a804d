//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the whisper user store and
// an scs session store. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.); the bundled commands use SQLite.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User records, with unique indexes on username and google_id
//   - sessions: scs session tokens, their encoded data and expiry
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("whisper.db"), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	userStore := gormstore.NewUserStore(db)
//	sessionStore := gormstore.NewSessionStore(db)
package gorm
