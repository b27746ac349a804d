package whisper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/panyam/whisper/oauth2"
	xoauth2 "golang.org/x/oauth2"
)

// Flash messages shown by the app
const (
	msgSecretSaved       = "Secret submitted successfully!"
	msgSecretEmpty       = "Your secret cannot be empty."
	msgSubmitFailed      = "There was an error submitting your secret."
	msgSubmitNoUser      = "User not found."
	msgMustLogin         = "You must be logged in to submit a secret."
	msgRetrieveFailed    = "There was an error retrieving your secrets."
	msgGoogleFailed      = "Could not sign in with Google."
	msgGoogleUnavailable = "Google sign-in is not configured."
)

// retryParam marks the one self-redirect allowed after a failed read
const retryParam = "retry"

// App is the session-backed web app: local accounts, Google sign-in and the
// per-user secrets pages.
type App struct {
	Sessions   *SessionManager
	Reconciler *Reconciler
	Renderer   *Renderer
	Local      *LocalAuth

	// Google is optional; without it /auth/google redirects back to /login
	Google *oauth2.GoogleOAuth2

	router *mux.Router
}

func NewApp(sessions *SessionManager, reconciler *Reconciler, renderer *Renderer, google *oauth2.GoogleOAuth2) *App {
	out := &App{
		Sessions:   sessions,
		Reconciler: reconciler,
		Renderer:   renderer,
		Google:     google,
		Local:      &LocalAuth{Reconciler: reconciler, Sessions: sessions},
	}
	if google != nil {
		google.HandleUser = out.onGoogleUser
		google.OnFailure = out.onGoogleFailure
	}
	sessions.OnStoreFault = out.onStoreFault
	return out.setupRoutes()
}

// Handler returns the router wrapped in session load/save
func (a *App) Handler() http.Handler {
	return a.Sessions.LoadAndSave(a.router)
}

func (a *App) setupRoutes() *App {
	r := mux.NewRouter()
	r.HandleFunc("/", a.showPage(PageHome)).Methods(http.MethodGet)
	r.HandleFunc("/login", a.showPage(PageLogin)).Methods(http.MethodGet)
	r.HandleFunc("/register", a.showPage(PageRegister)).Methods(http.MethodGet)
	r.HandleFunc("/login", a.Local.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/register", a.Local.HandleSignup).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet)

	r.HandleFunc("/auth/google", a.onGoogleRedirect).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/secrets", a.onGoogleCallback).Methods(http.MethodGet)

	r.Handle("/secrets", a.Sessions.EnsureUser(http.HandlerFunc(a.showSecrets))).Methods(http.MethodGet)
	r.Handle("/submit", a.Sessions.EnsureUser(a.showPage(PageSubmit))).Methods(http.MethodGet)
	r.Handle("/submit", a.Sessions.ExtractUser(http.HandlerFunc(a.onSubmit))).Methods(http.MethodPost)
	a.router = r
	return a
}

// pageData pops pending flashes into a fresh PageData
func (a *App) pageData(ctx context.Context) *PageData {
	return &PageData{
		User:          UserFromContext(ctx),
		Success:       a.Sessions.PopFlashes(ctx, FlashSuccess),
		Errors:        a.Sessions.PopFlashes(ctx, FlashError),
		Variant:       VariantServer,
		GoogleEnabled: a.Google != nil,
	}
}

func (a *App) showPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Renderer.Render(w, http.StatusOK, page, a.pageData(r.Context()))
	}
}

func (a *App) showSecrets(w http.ResponseWriter, r *http.Request) {
	data := a.pageData(r.Context())
	data.Secrets = data.User.Secrets
	a.Renderer.Render(w, http.StatusOK, PageSecrets, data)
}

// onStoreFault handles a failed session read on a protected page: flash and
// redirect to the same page once, then render the error in place.
func (a *App) onStoreFault(err error, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Get(retryParam) == "" {
		a.Sessions.AddFlash(ctx, FlashError, msgRetrieveFailed)
		http.Redirect(w, r, r.URL.Path+"?"+retryParam+"=1", http.StatusFound)
		return
	}
	data := a.pageData(ctx)
	if len(data.Errors) == 0 {
		data.Errors = []string{msgRetrieveFailed}
	}
	a.Renderer.Render(w, AsAuthError(err).Status(), PageHome, data)
}

func (a *App) onSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := UserFromContext(ctx)
	if err := UserFaultFromContext(ctx); err != nil {
		a.Sessions.AddFlash(ctx, FlashError, msgSubmitFailed)
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	if user == nil {
		a.Sessions.AddFlash(ctx, FlashError, msgMustLogin)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	secret := r.FormValue("secret")
	if strings.TrimSpace(secret) == "" {
		a.Sessions.AddFlash(ctx, FlashError, msgSecretEmpty)
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}

	if err := a.Reconciler.Store.AppendSecret(ctx, user.ID, secret); err != nil {
		slog.Warn("error saving secret", "userId", user.ID, "err", err)
		msg := msgSubmitFailed
		if errors.Is(err, ErrNotFound) {
			msg = msgSubmitNoUser
		}
		a.Sessions.AddFlash(ctx, FlashError, msg)
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	a.Sessions.AddFlash(ctx, FlashSuccess, msgSecretSaved)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Logout(r.Context())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) onGoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if a.Google == nil {
		a.Sessions.AddFlash(r.Context(), FlashError, msgGoogleUnavailable)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	a.Google.HandleRedirect(w, r)
}

func (a *App) onGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if a.Google == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	a.Google.HandleCallback(w, r)
}

/**
 * Called by the oauth callback handler once the provider has vouched for a
 * profile. Reconciles the profile id onto exactly one user record and starts
 * the session.
 */
func (a *App) onGoogleUser(provider string, token *xoauth2.Token, profile *oauth2.Profile, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := a.Reconciler.FindOrCreateByExternalID(ctx, provider, profile.ID)
	if err != nil {
		a.onGoogleFailure(err, w, r)
		return
	}
	if err := a.Sessions.Login(ctx, user); err != nil {
		a.onGoogleFailure(err, w, r)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onGoogleFailure(err error, w http.ResponseWriter, r *http.Request) {
	slog.Info("Google sign-in failed", "err", err)
	a.Sessions.AddFlash(r.Context(), FlashError, msgGoogleFailed)
	http.Redirect(w, r, "/login", http.StatusFound)
}
