package whisper

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Vault is the sessionless variant: passwords are encrypted at rest and every
// login or register response renders the result directly. No cookie is issued, so
// each later request is anonymous again.
type Vault struct {
	Reconciler *Reconciler
	Renderer   *Renderer

	router *mux.Router
}

func NewVault(reconciler *Reconciler, renderer *Renderer) *Vault {
	out := &Vault{Reconciler: reconciler, Renderer: renderer}
	r := mux.NewRouter()
	r.HandleFunc("/", out.showPage(PageHome)).Methods(http.MethodGet)
	r.HandleFunc("/login", out.showPage(PageLogin)).Methods(http.MethodGet)
	r.HandleFunc("/register", out.showPage(PageRegister)).Methods(http.MethodGet)
	r.HandleFunc("/register", out.onRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", out.onLogin).Methods(http.MethodPost)
	out.router = r
	return out
}

func (v *Vault) Handler() http.Handler {
	return v.router
}

func (v *Vault) showPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.Renderer.Render(w, http.StatusOK, page, &PageData{Variant: VariantVault})
	}
}

// onRegister answers 200 with the new user's secrets page. A taken username is a
// 500 like any other failure, and never overwrites the existing record.
func (v *Vault) onRegister(w http.ResponseWriter, r *http.Request) {
	creds, authErr := parseCredentials(r, "username", "password")
	if authErr != nil {
		v.fail(w, PageRegister, http.StatusBadRequest, authErr)
		return
	}
	user, err := v.Reconciler.RegisterLocal(r.Context(), creds.Username, creds.Password)
	if err != nil {
		slog.Info("vault registration failed", "err", err)
		authErr := AsAuthError(err)
		status := http.StatusInternalServerError
		if authErr.Code == ErrCodeMissingField {
			status = http.StatusBadRequest
		}
		v.fail(w, PageRegister, status, authErr)
		return
	}
	v.Renderer.Render(w, http.StatusOK, PageSecrets, &PageData{User: user, Secrets: user.Secrets, Variant: VariantVault})
}

// onLogin answers 200, 404 for an unknown user, 401 for a wrong password and
// 500 for anything else.
func (v *Vault) onLogin(w http.ResponseWriter, r *http.Request) {
	creds, authErr := parseCredentials(r, "username", "password")
	if authErr != nil {
		v.fail(w, PageLogin, http.StatusBadRequest, authErr)
		return
	}
	user, err := v.Reconciler.AuthenticateLocal(r.Context(), creds.Username, creds.Password)
	if err != nil {
		authErr := AsAuthError(err)
		status := authErr.Status()
		switch authErr.Code {
		case ErrCodeUserNotFound, ErrCodeInvalidCreds, ErrCodeMissingField:
		default:
			slog.Warn("vault login failed", "err", err)
			status = http.StatusInternalServerError
		}
		v.fail(w, PageLogin, status, authErr)
		return
	}
	v.Renderer.Render(w, http.StatusOK, PageSecrets, &PageData{User: user, Secrets: user.Secrets, Variant: VariantVault})
}

func (v *Vault) fail(w http.ResponseWriter, page string, status int, err *AuthError) {
	v.Renderer.Render(w, status, page, &PageData{Errors: []string{err.Message}, Variant: VariantVault})
}
