//go:build !wasm
// +build !wasm

package gae

import (
	"slices"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/panyam/whisper"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Username  string         `datastore:"username"`
	Password  string         `datastore:"password,noindex"`
	GoogleID  string         `datastore:"google_id"`
	Secrets   []string       `datastore:"secrets,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
	Version   int            `datastore:"version"`
}

func (e *UserEntity) ToUser() *whisper.User {
	secrets := slices.Clone(e.Secrets)
	if secrets == nil {
		secrets = []string{}
	}
	return &whisper.User{
		ID:        e.Key.Name,
		Username:  e.Username,
		Password:  e.Password,
		GoogleID:  e.GoogleID,
		Secrets:   secrets,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Version:   e.Version,
	}
}

func UserToEntity(u *whisper.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:       key,
		Username:  u.Username,
		Password:  u.Password,
		GoogleID:  u.GoogleID,
		Secrets:   slices.Clone(u.Secrets),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Version:   u.Version,
	}
}

// IndexEntity reserves a unique value (a username or a Google id) for one user.
// Key format: the value itself, under KindUsername or KindGoogleIdentity.
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}
