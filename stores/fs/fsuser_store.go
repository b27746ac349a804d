package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panyam/whisper"
)

// UserStore implements whisper.UserStore using filesystem storage.
//
// # File Structure
//
// Each user is one JSON document named by its id:
//
//	{StoragePath}/users/{id}.json
//
// # Concurrency
//
// All writes are serialized by a process-wide mutex, which makes username and
// googleId uniqueness checks and secret appends atomic within one process. Files
// are replaced via temp-file rename so readers never see a partial document.
// Running two processes over the same directory is not supported.
type UserStore struct {
	StoragePath string

	mu sync.RWMutex
}

func NewUserStore(storagePath string) *UserStore {
	return &UserStore{StoragePath: storagePath}
}

func (s *UserStore) usersDir() string {
	return filepath.Join(s.StoragePath, "users")
}

func (s *UserStore) getUserPath(userId string) string {
	return filepath.Join(s.usersDir(), userId+".json")
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", whisper.ErrStoreUnavailable, err)
}

// fileUser adds the stored password, which whisper.User keeps out of JSON
type fileUser struct {
	*whisper.User
	Password string `json:"password,omitempty"`
}

func (s *UserStore) writeUser(user *whisper.User) error {
	if err := os.MkdirAll(s.usersDir(), 0755); err != nil {
		return unavailable(err)
	}
	data, err := json.MarshalIndent(fileUser{User: user, Password: user.Password}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomicFile(s.getUserPath(user.ID), data); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*whisper.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readFull(userId)
}

// readFull reads a user including its stored password
func (s *UserStore) readFull(userId string) (*whisper.User, error) {
	if _, err := uuid.Parse(userId); err != nil {
		return nil, fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
	}
	data, err := os.ReadFile(s.getUserPath(userId))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", whisper.ErrNotFound, userId)
		}
		return nil, unavailable(err)
	}
	fu := fileUser{User: &whisper.User{}}
	if err := json.Unmarshal(data, &fu); err != nil {
		return nil, unavailable(fmt.Errorf("corrupt user file %s: %w", userId, err))
	}
	fu.User.Password = fu.Password
	return fu.User, nil
}

func (s *UserStore) FindUser(ctx context.Context, query whisper.UserQuery) (*whisper.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUser(query)
}

func (s *UserStore) findUser(query whisper.UserQuery) (*whisper.User, error) {
	if query.IsEmpty() {
		return nil, fmt.Errorf("%w: empty query", whisper.ErrNotFound)
	}
	entries, err := os.ReadDir(s.usersDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, whisper.ErrNotFound
		}
		return nil, unavailable(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		user, err := s.readFull(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, whisper.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if query.Username != "" && user.Username == query.Username {
			return user, nil
		}
		if query.GoogleID != "" && user.GoogleID == query.GoogleID {
			return user, nil
		}
	}
	return nil, whisper.ErrNotFound
}

func (s *UserStore) CreateUser(ctx context.Context, user *whisper.User) (*whisper.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range []whisper.UserQuery{{Username: user.Username}, {GoogleID: user.GoogleID}} {
		if q.IsEmpty() {
			continue
		}
		_, err := s.findUser(q)
		if err == nil {
			return nil, whisper.ErrDuplicateIdentity
		}
		if !errors.Is(err, whisper.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	created := *user
	created.ID = uuid.NewString()
	created.Secrets = slices.Clone(user.Secrets)
	if created.Secrets == nil {
		created.Secrets = []string{}
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Version = 1
	if err := s.writeUser(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *whisper.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readFull(user.ID)
	if err != nil {
		return err
	}
	var moved []whisper.UserQuery
	if user.Username != existing.Username {
		moved = append(moved, whisper.UserQuery{Username: user.Username})
	}
	if user.GoogleID != existing.GoogleID {
		moved = append(moved, whisper.UserQuery{GoogleID: user.GoogleID})
	}
	for _, q := range moved {
		if q.IsEmpty() {
			continue
		}
		other, err := s.findUser(q)
		if err == nil && other.ID != user.ID {
			return whisper.ErrDuplicateIdentity
		}
		if err != nil && !errors.Is(err, whisper.ErrNotFound) {
			return err
		}
	}
	saved := *user
	saved.CreatedAt = existing.CreatedAt
	saved.UpdatedAt = time.Now()
	saved.Version = existing.Version + 1
	if err := s.writeUser(&saved); err != nil {
		return err
	}
	user.UpdatedAt, user.Version = saved.UpdatedAt, saved.Version
	return nil
}

func (s *UserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.readFull(userId)
	if err != nil {
		return err
	}
	user.Secrets = append(user.Secrets, secret)
	user.UpdatedAt = time.Now()
	user.Version++
	return s.writeUser(user)
}
