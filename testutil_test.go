package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	xoauth2 "golang.org/x/oauth2"

	"github.com/panyam/whisper"
	"github.com/panyam/whisper/oauth2"
	"github.com/panyam/whisper/stores/fs"
)

var testCodec = whisper.BcryptCodec{Cost: bcrypt.MinCost}

// faultyStore wraps a store and fails selected operations on demand
type faultyStore struct {
	whisper.UserStore
	failGet    atomic.Bool
	failFind   atomic.Bool
	failAppend atomic.Bool
}

func (s *faultyStore) GetUserById(ctx context.Context, userId string) (*whisper.User, error) {
	if s.failGet.Load() {
		return nil, whisper.ErrStoreUnavailable
	}
	return s.UserStore.GetUserById(ctx, userId)
}

func (s *faultyStore) FindUser(ctx context.Context, query whisper.UserQuery) (*whisper.User, error) {
	if s.failFind.Load() {
		return nil, whisper.ErrStoreUnavailable
	}
	return s.UserStore.FindUser(ctx, query)
}

func (s *faultyStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	if s.failAppend.Load() {
		return whisper.ErrStoreUnavailable
	}
	return s.UserStore.AppendSecret(ctx, userId, secret)
}

func newFaultyStore(t *testing.T) (*faultyStore, string) {
	dir := t.TempDir()
	return &faultyStore{UserStore: fs.NewUserStore(dir)}, dir
}

// countUsers counts user documents in an fs store directory
func countUsers(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "users"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n
}

// browser is a cookie-keeping client that does not follow redirects
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(resp *http.Response, err error) (*http.Response, string) {
	b.t.Helper()
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	return b.do(b.client.Get(b.base + path))
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	return b.do(b.client.PostForm(b.base+path, form))
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.base)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func creds(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

var secretItem = regexp.MustCompile(`<li class="secret">([^<]*)</li>`)

// renderedSecrets extracts the secrets list from a rendered page
func renderedSecrets(body string) []string {
	var out []string
	for _, m := range secretItem.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

// mockGoogle is a stand-in for Google's token and userinfo endpoints
type mockGoogle struct {
	server *httptest.Server

	mu        sync.Mutex
	accountId string
}

func newMockGoogle(t *testing.T) *mockGoogle {
	m := &mockGoogle{accountId: "google-account-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		id := m.accountId
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": id, "name": "Google User"})
	})
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockGoogle) setAccount(id string) {
	m.mu.Lock()
	m.accountId = id
	m.mu.Unlock()
}

func (m *mockGoogle) provider() *oauth2.GoogleOAuth2 {
	g := oauth2.NewGoogleOAuth2("client-id", "client-secret", "http://localhost:3000/auth/google/secrets", nil)
	g.SetOAuthEndpoint(xoauth2Endpoint(m.server.URL))
	g.SetHTTPClient(m.server.Client())
	g.UserInfoEndpoint = m.server.URL + "/"
	return g
}

func xoauth2Endpoint(base string) xoauth2.Endpoint {
	return xoauth2.Endpoint{AuthURL: base + "/auth", TokenURL: base + "/token"}
}

// testApp is a running session-backed server over a temp fs store
type testApp struct {
	server *httptest.Server
	store  *faultyStore
	dir    string
	google *mockGoogle
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, dir := newFaultyStore(t)
	renderer, err := whisper.NewRenderer()
	require.NoError(t, err)

	google := newMockGoogle(t)
	sessions := whisper.NewSessionManager(store, nil, 0, false)
	app := whisper.NewApp(sessions, whisper.NewReconciler(store, testCodec), renderer, google.provider())

	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return &testApp{server: server, store: store, dir: dir, google: google}
}

func (a *testApp) browser(t *testing.T) *browser {
	return newBrowser(t, a.server.URL)
}

// googleLogin runs the redirect and callback legs of the OAuth dance
func (b *browser) googleLogin() *http.Response {
	b.t.Helper()
	resp, _ := b.get("/auth/google")
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(b.t, err)
	state := location.Query().Get("state")
	require.NotEmpty(b.t, state)

	resp, _ = b.get("/auth/google/secrets?" + url.Values{"state": {state}, "code": {"authcode"}}.Encode())
	return resp
}
