// Package storetest is a conformance suite every whisper.UserStore must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/whisper"
)

// Run exercises a store. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) whisper.UserStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store whisper.UserStore)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"FindUser", testFindUser},
		{"GetUnknown", testGetUnknown},
		{"DuplicateUsername", testDuplicateUsername},
		{"DuplicateGoogleID", testDuplicateGoogleID},
		{"MissingKeysDoNotCollide", testMissingKeysDoNotCollide},
		{"AppendSecretOrder", testAppendSecretOrder},
		{"AppendSecretUnknown", testAppendSecretUnknown},
		{"ConcurrentAppends", testConcurrentAppends},
		{"ConcurrentCreateSameGoogleID", testConcurrentCreateSameGoogleID},
		{"SaveUser", testSaveUser},
		{"SaveUserMovesKeys", testSaveUserMovesKeys},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testCreateAndGet(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	created, err := store.CreateUser(ctx, &whisper.User{Username: "alice", Password: "stored-form"})
	require.NoError(t, err)

	_, err = uuid.Parse(created.ID)
	assert.NoError(t, err, "id should be a uuid")
	assert.Equal(t, 1, created.Version)
	assert.Empty(t, created.Secrets)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetUserById(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "stored-form", got.Password)
	assert.Empty(t, got.GoogleID)
	assert.Empty(t, got.Secrets)
}

func testFindUser(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	local, err := store.CreateUser(ctx, &whisper.User{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	federated, err := store.CreateUser(ctx, &whisper.User{GoogleID: "g-100"})
	require.NoError(t, err)

	got, err := store.FindUser(ctx, whisper.UserQuery{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, local.ID, got.ID)

	got, err = store.FindUser(ctx, whisper.UserQuery{GoogleID: "g-100"})
	require.NoError(t, err)
	assert.Equal(t, federated.ID, got.ID)
	assert.Empty(t, got.Password)

	_, err = store.FindUser(ctx, whisper.UserQuery{Username: "nobody"})
	assert.ErrorIs(t, err, whisper.ErrNotFound)

	_, err = store.FindUser(ctx, whisper.UserQuery{GoogleID: "g-999"})
	assert.ErrorIs(t, err, whisper.ErrNotFound)

	_, err = store.FindUser(ctx, whisper.UserQuery{})
	assert.ErrorIs(t, err, whisper.ErrNotFound)
}

func testGetUnknown(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	_, err := store.GetUserById(ctx, uuid.NewString())
	assert.ErrorIs(t, err, whisper.ErrNotFound)

	_, err = store.GetUserById(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, whisper.ErrNotFound)
}

func testDuplicateUsername(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	first, err := store.CreateUser(ctx, &whisper.User{Username: "carol", Password: "first"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, &whisper.User{Username: "carol", Password: "second"})
	assert.ErrorIs(t, err, whisper.ErrDuplicateIdentity)

	got, err := store.GetUserById(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Password, "original record must not be overwritten")
}

func testDuplicateGoogleID(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	_, err := store.CreateUser(ctx, &whisper.User{GoogleID: "g-1"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, &whisper.User{GoogleID: "g-1"})
	assert.ErrorIs(t, err, whisper.ErrDuplicateIdentity)
}

// records lacking a username (or a google id) must not collide on the empty value
func testMissingKeysDoNotCollide(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	_, err := store.CreateUser(ctx, &whisper.User{GoogleID: "g-a"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, &whisper.User{GoogleID: "g-b"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, &whisper.User{Username: "dan", Password: "pw"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, &whisper.User{Username: "erin", Password: "pw"})
	require.NoError(t, err)
}

func testAppendSecretOrder(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &whisper.User{Username: "frank", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, store.AppendSecret(ctx, user.ID, "S1"))
	require.NoError(t, store.AppendSecret(ctx, user.ID, "S2"))
	require.NoError(t, store.AppendSecret(ctx, user.ID, "S1"))

	got, err := store.GetUserById(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2", "S1"}, got.Secrets)
	assert.Equal(t, "pw", got.Password, "append must not touch other fields")
}

func testAppendSecretUnknown(t *testing.T, store whisper.UserStore) {
	err := store.AppendSecret(context.Background(), uuid.NewString(), "lost")
	assert.ErrorIs(t, err, whisper.ErrNotFound)
}

func testConcurrentAppends(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &whisper.User{Username: "grace", Password: "pw"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.AppendSecret(ctx, user.ID, fmt.Sprintf("secret-%d", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetUserById(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, got.Secrets, n, "no append may be lost")
	for i := 0; i < n; i++ {
		assert.Contains(t, got.Secrets, fmt.Sprintf("secret-%d", i))
	}
}

func testConcurrentCreateSameGoogleID(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateUser(ctx, &whisper.User{GoogleID: "g-race"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, whisper.ErrDuplicateIdentity)
	}
	assert.Equal(t, 1, created, "exactly one create may win")
}

func testSaveUser(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &whisper.User{Username: "heidi", Password: "pw"})
	require.NoError(t, err)

	user.Secrets = append(user.Secrets, "saved")
	user.Password = "pw2"
	require.NoError(t, store.SaveUser(ctx, user))

	got, err := store.GetUserById(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"saved"}, got.Secrets)
	assert.Equal(t, "pw2", got.Password)
	assert.Greater(t, got.Version, 1)

	missing := &whisper.User{ID: uuid.NewString(), Username: "ghost"}
	assert.ErrorIs(t, store.SaveUser(ctx, missing), whisper.ErrNotFound)
}

// renaming a record frees the old keys and claims the new ones
func testSaveUserMovesKeys(t *testing.T, store whisper.UserStore) {
	ctx := context.Background()
	user, err := store.CreateUser(ctx, &whisper.User{Username: "ivan", Password: "pw"})
	require.NoError(t, err)
	taken, err := store.CreateUser(ctx, &whisper.User{Username: "judy", Password: "pw"})
	require.NoError(t, err)

	user.Username = "ivan2"
	user.GoogleID = "g-ivan"
	require.NoError(t, store.SaveUser(ctx, user))

	got, err := store.FindUser(ctx, whisper.UserQuery{Username: "ivan2"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	got, err = store.FindUser(ctx, whisper.UserQuery{GoogleID: "g-ivan"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	_, err = store.FindUser(ctx, whisper.UserQuery{Username: "ivan"})
	assert.ErrorIs(t, err, whisper.ErrNotFound)

	// the freed username can be registered again
	_, err = store.CreateUser(ctx, &whisper.User{Username: "ivan", Password: "pw"})
	require.NoError(t, err)

	// a rename onto a taken username is refused and leaves the record as it was
	user.Username = "judy"
	assert.ErrorIs(t, store.SaveUser(ctx, user), whisper.ErrDuplicateIdentity)
	got, err = store.FindUser(ctx, whisper.UserQuery{Username: "judy"})
	require.NoError(t, err)
	assert.Equal(t, taken.ID, got.ID)
	got, err = store.GetUserById(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ivan2", got.Username)
}
