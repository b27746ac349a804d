package oauth2

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleScopes asks only for the basic profile, which carries the stable account id
var GoogleScopes = []string{"profile"}

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoEndpoint overrides the base URL of the userinfo API. Used in tests.
	UserInfoEndpoint string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GoogleOAuth2 {
	out := GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
	}
	out.BaseOAuth2.oauthConfig.Endpoint = google.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = GoogleScopes
	return &out
}

// HandleCallback completes the flow: it checks the state, exchanges the code and
// fetches the profile before handing off to HandleUser.
func (g *GoogleOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if denied := r.FormValue("error"); denied != "" {
		g.fail(fmt.Errorf("%w: provider returned %q", ErrProviderFailure, denied), w, r)
		return
	}
	if err := g.checkState(w, r); err != nil {
		g.fail(err, w, r)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		g.fail(fmt.Errorf("%w: missing code", ErrProviderFailure), w, r)
		return
	}

	ctx := g.exchangeContext(r.Context())
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		g.fail(fmt.Errorf("%w: code exchange: %v", ErrProviderFailure, err), w, r)
		return
	}

	profile, err := g.fetchProfile(ctx, token)
	if err != nil {
		g.fail(fmt.Errorf("%w: %v", ErrProviderFailure, err), w, r)
		return
	}
	g.HandleUser("google", token, profile, w, r)
}

func (g *GoogleOAuth2) fetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	opts := []option.ClientOption{option.WithHTTPClient(g.oauthConfig.Client(ctx, token))}
	if g.UserInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.UserInfoEndpoint))
	}
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	if info.Id == "" {
		return nil, fmt.Errorf("user info has no id")
	}
	slog.Debug("Fetched google profile", "id", info.Id)
	return &Profile{ID: info.Id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}
