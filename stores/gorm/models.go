//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/panyam/whisper"
)

// StringSlice is a helper type for storing string slices in GORM as JSON text
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*s = StringSlice{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
	return json.Unmarshal(data, s)
}

// UserModel is the GORM model for users. Username and GoogleID are nullable so
// the unique indexes ignore records that lack them.
type UserModel struct {
	ID        string      `gorm:"primaryKey;size:64"`
	Username  *string     `gorm:"uniqueIndex;size:255"`
	Password  string      `gorm:"size:512"`
	GoogleID  *string     `gorm:"uniqueIndex;size:255"`
	Secrets   StringSlice `gorm:"type:text;not null"`
	Version   int         `gorm:"not null;default:1"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *UserModel) ToUser() *whisper.User {
	secrets := slices.Clone([]string(m.Secrets))
	if secrets == nil {
		secrets = []string{}
	}
	return &whisper.User{
		ID:        m.ID,
		Username:  deref(m.Username),
		Password:  m.Password,
		GoogleID:  deref(m.GoogleID),
		Secrets:   secrets,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
	}
}

func UserToModel(u *whisper.User) *UserModel {
	return &UserModel{
		ID:        u.ID,
		Username:  nullable(u.Username),
		Password:  u.Password,
		GoogleID:  nullable(u.GoogleID),
		Secrets:   StringSlice(slices.Clone(u.Secrets)),
		Version:   u.Version,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// SessionModel is the GORM model for scs sessions
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"index;not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}
