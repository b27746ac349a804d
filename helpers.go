package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderGoogle is the only federated identity provider the reconciler accepts.
const ProviderGoogle = "google"

// Reconciler maps an incoming identity assertion (a local credential or an
// external provider id) onto exactly one record in the store.
type Reconciler struct {
	Store UserStore
	Codec PasswordCodec
}

func NewReconciler(store UserStore, codec PasswordCodec) *Reconciler {
	return &Reconciler{Store: store, Codec: codec}
}

// FindOrCreateByExternalID returns the record linked to externalID, creating a
// password-less record on first sight.
//
// The lookup and the create are two separate store calls. Two concurrent callbacks
// for an unseen id can both miss the lookup; the store's unique googleId key makes
// one create fail with ErrDuplicateIdentity and the loser re-reads the winner.
func (r *Reconciler) FindOrCreateByExternalID(ctx context.Context, provider, externalID string) (*User, error) {
	if provider != ProviderGoogle {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external id", ErrUpstreamAuth)
	}
	query := UserQuery{GoogleID: externalID}

	user, err := r.Store.FindUser(ctx, query)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err = r.Store.CreateUser(ctx, &User{GoogleID: externalID})
	if errors.Is(err, ErrDuplicateIdentity) {
		slog.Info("Lost race creating federated user, re-reading", "provider", provider)
		return r.Store.FindUser(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Created federated user", "userId", user.ID, "provider", provider)
	return user, nil
}

// RegisterLocal creates a new local record with an encoded password.
// Nothing is written if the username is taken or encoding fails.
func (r *Reconciler) RegisterLocal(ctx context.Context, username, password string) (*User, error) {
	creds := &Credentials{Username: strings.TrimSpace(username), Password: password}
	if authErr := creds.Validate(); authErr != nil {
		return nil, authErr
	}

	stored, err := r.Codec.Encode(creds.Password)
	if err != nil {
		return nil, err
	}

	user, err := r.Store.CreateUser(ctx, &User{Username: creds.Username, Password: stored})
	if err != nil {
		return nil, err
	}
	slog.Info("Created local user", "userId", user.ID)
	return user, nil
}

// AuthenticateLocal looks the user up by username and verifies the password.
// It distinguishes ErrNotFound from ErrWrongCredential; records created through
// a provider have no password and always fail with ErrWrongCredential.
func (r *Reconciler) AuthenticateLocal(ctx context.Context, username, password string) (*User, error) {
	creds := &Credentials{Username: strings.TrimSpace(username), Password: password}
	if authErr := creds.Validate(); authErr != nil {
		return nil, authErr
	}

	user, err := r.Store.FindUser(ctx, UserQuery{Username: creds.Username})
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() {
		return nil, ErrWrongCredential
	}

	ok, err := r.Codec.Verify(creds.Password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password for %s: %w", user.ID, err)
	}
	if !ok {
		return nil, ErrWrongCredential
	}
	return user, nil
}
