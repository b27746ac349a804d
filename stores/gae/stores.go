//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	"github.com/panyam/whisper"
)

// Kind constants for Datastore entities
const (
	KindUser           = "User"
	KindUsername       = "Username"
	KindGoogleIdentity = "GoogleIdentity"
)

// maxTxAttempts bounds retries of a contended secret append
const maxTxAttempts = 10

// UserStore implements whisper.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", whisper.ErrStoreUnavailable, err)
}

// classify passes through store sentinels raised inside a transaction and wraps
// everything else as unavailable
func classify(err error) error {
	if err == nil || errors.Is(err, whisper.ErrNotFound) || errors.Is(err, whisper.ErrDuplicateIdentity) {
		return err
	}
	return unavailable(err)
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*whisper.User, error) {
	if userId == "" {
		return nil, whisper.ErrNotFound
	}
	key := s.namespacedKey(KindUser, userId)
	var entity UserEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
		}
		return nil, unavailable(err)
	}
	entity.Key = key
	return entity.ToUser(), nil
}

// FindUser resolves the query through its index entity
func (s *UserStore) FindUser(ctx context.Context, query whisper.UserQuery) (*whisper.User, error) {
	var key *datastore.Key
	switch {
	case query.Username != "":
		key = s.namespacedKey(KindUsername, query.Username)
	case query.GoogleID != "":
		key = s.namespacedKey(KindGoogleIdentity, query.GoogleID)
	default:
		return nil, fmt.Errorf("%w: empty query", whisper.ErrNotFound)
	}
	var index IndexEntity
	if err := s.client.Get(ctx, key, &index); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, whisper.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return s.GetUserById(ctx, index.UserID)
}

// indexKeys returns the index entities a user with these values must own
func (s *UserStore) indexKeys(username, googleID string) []*datastore.Key {
	var keys []*datastore.Key
	if username != "" {
		keys = append(keys, s.namespacedKey(KindUsername, username))
	}
	if googleID != "" {
		keys = append(keys, s.namespacedKey(KindGoogleIdentity, googleID))
	}
	return keys
}

// reserve puts index entities for userId, failing if any is owned by another user
func reserve(tx *datastore.Transaction, keys []*datastore.Key, userId string, now time.Time) error {
	for _, key := range keys {
		var existing IndexEntity
		err := tx.Get(key, &existing)
		if err == nil && existing.UserID != userId {
			return whisper.ErrDuplicateIdentity
		}
		if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(key, &IndexEntity{UserID: userId, CreatedAt: now}); err != nil {
			return err
		}
	}
	return nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *whisper.User) (*whisper.User, error) {
	userId := uuid.NewString()
	key := s.namespacedKey(KindUser, userId)
	now := time.Now()

	entity := UserToEntity(user, key)
	entity.CreatedAt = now
	entity.UpdatedAt = now
	entity.Version = 1

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := reserve(tx, s.indexKeys(user.Username, user.GoogleID), userId, now); err != nil {
			return err
		}
		_, err := tx.Put(key, entity)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return entity.ToUser(), nil
}

// SaveUser overwrites the record and moves its index entities if the username or
// Google id changed.
func (s *UserStore) SaveUser(ctx context.Context, user *whisper.User) error {
	key := s.namespacedKey(KindUser, user.ID)
	var saved *UserEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return fmt.Errorf("%w: %s", whisper.ErrNotFound, user.ID)
			}
			return err
		}
		now := time.Now()

		var added, removed []*datastore.Key
		if existing.Username != user.Username {
			added = append(added, s.indexKeys(user.Username, "")...)
			removed = append(removed, s.indexKeys(existing.Username, "")...)
		}
		if existing.GoogleID != user.GoogleID {
			added = append(added, s.indexKeys("", user.GoogleID)...)
			removed = append(removed, s.indexKeys("", existing.GoogleID)...)
		}
		if err := reserve(tx, added, user.ID, now); err != nil {
			return err
		}
		if len(removed) > 0 {
			if err := tx.DeleteMulti(removed); err != nil {
				return err
			}
		}

		saved = UserToEntity(user, key)
		saved.CreatedAt = existing.CreatedAt
		saved.UpdatedAt = now
		saved.Version = existing.Version + 1
		_, err := tx.Put(key, saved)
		return err
	})
	if err != nil {
		return classify(err)
	}
	user.UpdatedAt, user.Version = saved.UpdatedAt, saved.Version
	return nil
}

// AppendSecret appends inside a transaction; Datastore retries it on contention.
func (s *UserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	key := s.namespacedKey(KindUser, userId)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
			}
			return err
		}
		entity.Secrets = append(entity.Secrets, secret)
		entity.UpdatedAt = time.Now()
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	}, datastore.MaxAttempts(maxTxAttempts))
	return classify(err)
}
