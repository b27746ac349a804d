package whisper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/whisper"
)

func TestAnonymousIsSentToLogin(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, path := range []string{"/secrets", "/submit"} {
		resp, _ := b.get(path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}

	resp, _ := b.post("/submit", url.Values{"secret": {"S1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := b.get("/login")
	assert.Contains(t, body, "You must be logged in to submit a secret.")
}

func TestPublicPages(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	for _, path := range []string{"/", "/login", "/register"} {
		resp, _ := b.get(path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	_, body := b.get("/login")
	assert.Contains(t, body, `href="/auth/google"`)
}

func TestRegisterSubmitAndList(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	resp, _ := b.post("/register", creds("alice", "pw-alice"))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/secrets", resp.Header.Get("Location"))

	resp, body := b.get("/secrets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, renderedSecrets(body))

	for _, s := range []string{"S1", "S2"} {
		resp, _ = b.post("/submit", url.Values{"secret": {s}})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/secrets", resp.Header.Get("Location"))
	}

	_, body = b.get("/secrets")
	assert.Equal(t, []string{"S1", "S2"}, renderedSecrets(body))
	assert.Contains(t, body, "Secret submitted successfully!")

	// flashes are one-shot
	_, body = b.get("/secrets")
	assert.NotContains(t, body, "Secret submitted successfully!")

	user, err := app.store.FindUser(context.Background(), whisper.UserQuery{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, user.Secrets)
	assert.NotEqual(t, "pw-alice", user.Password, "password must be stored hashed")
}

func TestSecretsAreHTMLEscaped(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("mallory", "pw"))
	b.post("/submit", url.Values{"secret": {"<script>alert(1)</script>"}})

	_, body := b.get("/secrets")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestBlankSecretRejected(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	resp, _ := b.post("/submit", url.Values{"secret": {"   "}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit", resp.Header.Get("Location"))

	_, body := b.get("/submit")
	assert.Contains(t, body, "Your secret cannot be empty.")

	_, body = b.get("/secrets")
	assert.Empty(t, renderedSecrets(body))
}

func TestSecretsAreIsolatedPerUser(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	bob := app.browser(t)

	alice.post("/register", creds("alice", "pw"))
	bob.post("/register", creds("bob", "pw"))
	alice.post("/submit", url.Values{"secret": {"alice-secret"}})
	bob.post("/submit", url.Values{"secret": {"bob-secret"}})

	_, body := alice.get("/secrets")
	assert.Equal(t, []string{"alice-secret"}, renderedSecrets(body))
	_, body = bob.get("/secrets")
	assert.Equal(t, []string{"bob-secret"}, renderedSecrets(body))
}

func TestDuplicateRegistration(t *testing.T) {
	app := newTestApp(t)
	first := app.browser(t)
	first.post("/register", creds("alice", "original"))
	first.post("/submit", url.Values{"secret": {"keep-me"}})

	second := app.browser(t)
	resp, _ := second.post("/register", creds("alice", "hijack"))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/register", resp.Header.Get("Location"))

	_, body := second.get("/register")
	assert.Contains(t, body, "That username is already registered")

	// the second attempt is not logged in
	resp, _ = second.get("/secrets")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// the original record is untouched
	assert.Equal(t, 1, countUsers(t, app.dir))
	third := app.browser(t)
	resp, _ = third.post("/login", creds("alice", "original"))
	assert.Equal(t, "/secrets", resp.Header.Get("Location"))
	_, body = third.get("/secrets")
	assert.Equal(t, []string{"keep-me"}, renderedSecrets(body))
}

func TestRegisterMissingFields(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	resp, _ := b.post("/register", creds("", "pw"))
	assert.Equal(t, "/register", resp.Header.Get("Location"))
	_, body := b.get("/register")
	assert.Contains(t, body, "Username is required")

	resp, _ = b.post("/register", creds("alice", ""))
	assert.Equal(t, "/register", resp.Header.Get("Location"))
	assert.Equal(t, 0, countUsers(t, app.dir))
}

func TestLoginFailures(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).post("/register", creds("alice", "right"))

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "nobody", "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := app.browser(t)
			resp, _ := b.post("/login", creds(tt.username, tt.password))
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/login", resp.Header.Get("Location"))

			_, body := b.get("/login")
			assert.Contains(t, body, "Invalid username or password")

			// no session was established
			resp, _ = b.get("/secrets")
			assert.Equal(t, "/login", resp.Header.Get("Location"))
		})
	}
}

func TestLoginRenewsSessionToken(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).post("/register", creds("alice", "pw"))

	b := app.browser(t)
	// a failed login leaves a flash, which creates an anonymous session
	b.post("/login", creds("alice", "wrong"))
	before := b.cookie("whisper_session")
	require.NotEmpty(t, before)

	resp, _ := b.post("/login", creds("alice", "pw"))
	require.Equal(t, "/secrets", resp.Header.Get("Location"))
	after := b.cookie("whisper_session")
	assert.NotEmpty(t, after)
	assert.NotEqual(t, before, after, "login must issue a fresh session token")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	resp, _ := b.get("/secrets")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = b.get("/secrets")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// logging out while anonymous is harmless
	resp, _ = b.get("/logout")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestDeletedUserResolvesToAnonymous(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	user, err := app.store.FindUser(context.Background(), whisper.UserQuery{Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(app.dir, "users", user.ID+".json")))

	resp, _ := b.get("/secrets")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestSecretsReadFault(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	app.store.failGet.Store(true)
	resp, _ := b.get("/secrets")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/secrets?retry=1", resp.Header.Get("Location"))

	// a second fault renders the notice instead of looping
	resp, body := b.get("/secrets?retry=1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "There was an error retrieving your secrets.")

	// recovery: the session is still valid
	app.store.failGet.Store(false)
	resp, _ = b.get("/secrets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitFault(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	app.store.failAppend.Store(true)
	resp, _ := b.post("/submit", url.Values{"secret": {"lost"}})
	assert.Equal(t, "/submit", resp.Header.Get("Location"))

	_, body := b.get("/submit")
	assert.Contains(t, body, "There was an error submitting your secret.")
}

func TestSubmitSessionReadFault(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.post("/register", creds("alice", "pw"))

	// the session user cannot be resolved; this is not the same as being anonymous
	app.store.failGet.Store(true)
	resp, _ := b.post("/submit", url.Values{"secret": {"S1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit", resp.Header.Get("Location"))

	app.store.failGet.Store(false)
	_, body := b.get("/submit")
	assert.Contains(t, body, "There was an error submitting your secret.")
	assert.NotContains(t, body, "You must be logged in to submit a secret.")

	_, body = b.get("/secrets")
	assert.Empty(t, renderedSecrets(body))
}

func TestLoginStoreFault(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).post("/register", creds("alice", "pw"))

	app.store.failFind.Store(true)
	b := app.browser(t)
	resp, _ := b.post("/login", creds("alice", "pw"))
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	_, body := b.get("/login")
	assert.Contains(t, body, "Service temporarily unavailable")
}

func TestGoogleSignIn(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	resp := b.googleLogin()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/secrets", resp.Header.Get("Location"))

	resp, _ = b.get("/secrets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	user, err := app.store.FindUser(context.Background(), whisper.UserQuery{GoogleID: "google-account-1"})
	require.NoError(t, err)
	assert.Empty(t, user.Password, "federated records carry no password")
	assert.Empty(t, user.Username)

	// a second sign-in with the same account reuses the record
	again := app.browser(t)
	resp = again.googleLogin()
	require.Equal(t, "/secrets", resp.Header.Get("Location"))
	assert.Equal(t, 1, countUsers(t, app.dir))

	again.post("/submit", url.Values{"secret": {"from-google"}})
	_, body := b.get("/secrets")
	assert.Equal(t, []string{"from-google"}, renderedSecrets(body), "both sessions resolve to the same record")

	// a different account gets its own record
	app.google.setAccount("google-account-2")
	app.browser(t).googleLogin()
	assert.Equal(t, 2, countUsers(t, app.dir))
}

func TestGoogleCallbackFailures(t *testing.T) {
	app := newTestApp(t)

	t.Run("provider denied", func(t *testing.T) {
		b := app.browser(t)
		b.get("/auth/google")
		resp, _ := b.get("/auth/google/secrets?error=access_denied")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
		_, body := b.get("/login")
		assert.Contains(t, body, "Could not sign in with Google.")
	})

	t.Run("forged state", func(t *testing.T) {
		b := app.browser(t)
		b.get("/auth/google")
		resp, _ := b.get("/auth/google/secrets?state=forged&code=authcode")
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("no redirect leg", func(t *testing.T) {
		resp, _ := app.browser(t).get("/auth/google/secrets?state=x&code=authcode")
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	assert.Equal(t, 0, countUsers(t, app.dir))
}

func TestGoogleAccountCannotUseLocalLogin(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).googleLogin()

	// the federated record has no username, so no local credential can reach it
	resp, _ := app.browser(t).post("/login", creds("google-account-1", ""))
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestGoogleDisabled(t *testing.T) {
	store, _ := newFaultyStore(t)
	renderer, err := whisper.NewRenderer()
	require.NoError(t, err)
	sessions := whisper.NewSessionManager(store, nil, 0, false)
	app := whisper.NewApp(sessions, whisper.NewReconciler(store, testCodec), renderer, nil)

	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	b := newBrowser(t, server.URL)
	resp, _ := b.get("/auth/google")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	_, body := b.get("/login")
	assert.Contains(t, body, "Google sign-in is not configured.")
	assert.NotContains(t, body, `href="/auth/google"`)
}

func TestMethodNotAllowed(t *testing.T) {
	app := newTestApp(t)
	req, err := http.NewRequest(http.MethodDelete, app.server.URL+"/secrets", nil)
	require.NoError(t, err)
	b := app.browser(t)
	resp, _ := b.do(b.client.Do(req))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
