//go:build !wasm
// +build !wasm

package gae_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panyam/whisper"
	"github.com/panyam/whisper/stores/gae"
	"github.com/panyam/whisper/stores/storetest"
)

// Runs against the Datastore emulator:
//
//	gcloud beta emulators datastore start
//	export DATASTORE_EMULATOR_HOST=localhost:8081
func TestUserStoreConformance(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "whisper-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	storetest.Run(t, func(t *testing.T) whisper.UserStore {
		// a fresh namespace per test keeps runs isolated
		return gae.NewUserStore(client, "test-"+uuid.NewString()[:8])
	})
}
