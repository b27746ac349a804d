//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panyam/whisper"
)

// maxAppendRetries bounds the optimistic-lock loop in AppendSecret
const maxAppendRetries = 10

// AutoMigrate runs database migrations for all whisper tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SessionModel{},
	)
}

// UserStore implements whisper.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", whisper.ErrStoreUnavailable, err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key")
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*whisper.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
		}
		return nil, unavailable(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) FindUser(ctx context.Context, query whisper.UserQuery) (*whisper.User, error) {
	tx := s.db.WithContext(ctx)
	switch {
	case query.Username != "":
		tx = tx.Where("username = ?", query.Username)
	case query.GoogleID != "":
		tx = tx.Where("google_id = ?", query.GoogleID)
	default:
		return nil, fmt.Errorf("%w: empty query", whisper.ErrNotFound)
	}
	var model UserModel
	if err := tx.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, whisper.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *whisper.User) (*whisper.User, error) {
	model := UserToModel(user)
	model.ID = uuid.NewString()
	model.Version = 1
	if model.Secrets == nil {
		model.Secrets = StringSlice{}
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return nil, whisper.ErrDuplicateIdentity
		}
		return nil, unavailable(err)
	}
	return model.ToUser(), nil
}

// SaveUser overwrites every mutable column and bumps the version
func (s *UserStore) SaveUser(ctx context.Context, user *whisper.User) error {
	model := UserToModel(user)
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", user.ID).Updates(map[string]any{
		"username":   model.Username,
		"password":   model.Password,
		"google_id":  model.GoogleID,
		"secrets":    model.Secrets,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	})
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return whisper.ErrDuplicateIdentity
		}
		return unavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", whisper.ErrNotFound, user.ID)
	}
	user.UpdatedAt = now
	user.Version++
	return nil
}

// AppendSecret reads the record and writes it back only if its version has not
// moved, retrying on conflict. Concurrent appends never lose an entry.
func (s *UserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		var model UserModel
		if err := db.First(&model, "id = ?", userId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
			}
			return unavailable(err)
		}

		secrets := append(StringSlice{}, model.Secrets...)
		secrets = append(secrets, secret)
		result := db.Model(&UserModel{}).
			Where("id = ? AND version = ?", userId, model.Version).
			Updates(map[string]any{
				"secrets":    secrets,
				"version":    model.Version + 1,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return unavailable(result.Error)
		}
		if result.RowsAffected == 1 {
			return nil
		}
	}
	return unavailable(fmt.Errorf("append to %s lost %d version races", userId, maxAppendRetries))
}
