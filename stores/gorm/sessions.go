//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// SessionStore implements scs.Store using GORM, so sessions survive restarts.
// Expiry is kept in UTC so SQLite compares it correctly as text.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Find returns the data for a session token. Expired tokens are reported as missing.
func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.First(&model, "token = ? AND expiry > ?", token, time.Now().UTC()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model.Data, true, nil
}

// Commit adds or replaces a session token
func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.db.Save(&SessionModel{Token: token, Data: b, Expiry: expiry.UTC()}).Error
}

func (s *SessionStore) Delete(token string) error {
	return s.db.Delete(&SessionModel{}, "token = ?", token).Error
}

// DeleteExpired removes every expired session and returns how many went
func (s *SessionStore) DeleteExpired() (int64, error) {
	result := s.db.Where("expiry <= ?", time.Now().UTC()).Delete(&SessionModel{})
	return result.RowsAffected, result.Error
}

// StartCleanup sweeps expired sessions every interval until the returned stop
// function is called.
func (s *SessionStore) StartCleanup(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := s.DeleteExpired(); err != nil {
					slog.Warn("error sweeping sessions", "err", err)
				} else if n > 0 {
					slog.Debug("swept expired sessions", "count", n)
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
