package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrProviderFailure wraps every way a provider login can fail: a denied consent,
// a bad state, a failed code exchange or a failed profile fetch.
var ErrProviderFailure = errors.New("identity provider login failed")

// Profile is the subset of the provider's user info the app reconciles on.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// HandleUserFunc is called once the provider has vouched for a profile.
type HandleUserFunc func(provider string, token *oauth2.Token, profile *Profile, w http.ResponseWriter, r *http.Request)

// FailureFunc is called instead of HandleUserFunc when the callback cannot complete.
type FailureFunc func(err error, w http.ResponseWriter, r *http.Request)

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// OnFailure defaults to a 302 to AuthFailureURL
	OnFailure      FailureFunc
	AuthFailureURL string

	// Signs and checks the state parameter
	States *StateSigner

	// SecureCookies marks the state cookie Secure
	SecureCookies bool

	httpClient  *http.Client
	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleUser:     handleUser,
		AuthFailureURL: "/login",
		States:         NewStateSigner(nil, 0),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
}

// SetOAuthEndpoint points the flow at a different authorization server
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// SetHTTPClient overrides the client used for the code exchange and profile fetch
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.httpClient = client
}

// Config returns a copy of the underlying oauth2 config
func (b *BaseOAuth2) Config() oauth2.Config {
	return b.oauthConfig
}

func (b *BaseOAuth2) exchangeContext(ctx context.Context) context.Context {
	if b.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return ctx
}

// HandleRedirect issues a signed state, stores it in the oauthstate cookie and
// sends the browser to the provider's consent page.
func (b *BaseOAuth2) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	state, err := b.States.Issue()
	if err != nil {
		slog.Error("Could not issue oauth state", "err", err)
		http.Error(w, "Could not start login", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(b.States.TTL / time.Second),
		HttpOnly: true,
		Secure:   b.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, b.oauthConfig.AuthCodeURL(state), http.StatusFound)
}

// checkState validates the state parameter against the cookie and clears the cookie.
func (b *BaseOAuth2) checkState(w http.ResponseWriter, r *http.Request) error {
	cookie, _ := r.Cookie(StateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:   StateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	if cookie == nil || cookie.Value == "" {
		return fmt.Errorf("%w: missing state cookie", ErrProviderFailure)
	}
	if r.FormValue("state") != cookie.Value {
		return fmt.Errorf("%w: state mismatch", ErrProviderFailure)
	}
	if err := b.States.Verify(cookie.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return nil
}

func (b *BaseOAuth2) fail(err error, w http.ResponseWriter, r *http.Request) {
	slog.Info("OAuth callback failed", "err", err)
	if b.OnFailure != nil {
		b.OnFailure(err, w, r)
		return
	}
	http.Redirect(w, r, b.AuthFailureURL, http.StatusFound)
}
