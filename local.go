package whisper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// AuthErrorHandler handles a failed login or signup. Returning false falls back to
// the default response.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// Allows local username/password based authentication backed by a session
type LocalAuth struct {
	Reconciler *Reconciler
	Sessions   *SessionManager

	// Form field names
	UsernameField string
	PasswordField string

	// Where to go after a successful login or signup. Defaults to /secrets
	SuccessURL string

	// LoginURL and SignupURL receive the redirect after a failed attempt
	LoginURL  string
	SignupURL string

	// OnLoginError is called when login fails. If nil, a flash is set and the
	// browser is sent back to LoginURL.
	OnLoginError AuthErrorHandler

	// OnSignupError is called when signup fails. If nil, a flash is set and the
	// browser is sent back to SignupURL.
	OnSignupError AuthErrorHandler
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.HandleLogin(w, r)
}

// HandleLogin verifies the submitted credentials and only then establishes the
// session. Unknown users and wrong passwords get the same message.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	creds, authErr := parseCredentials(r, a.getUsernameField(), a.getPasswordField())
	if authErr != nil {
		a.handleLoginError(authErr, w, r)
		return
	}

	user, err := a.Reconciler.AuthenticateLocal(r.Context(), creds.Username, creds.Password)
	if err != nil {
		authErr := AsAuthError(err)
		slog.Info("Login failed", "code", authErr.Code, "err", err)
		if authErr.Code == ErrCodeUserNotFound || authErr.Code == ErrCodeInvalidCreds {
			authErr = NewAuthError(ErrCodeInvalidCreds, "Invalid username or password", "password")
		}
		a.handleLoginError(authErr, w, r)
		return
	}

	if err := a.Sessions.Login(r.Context(), user); err != nil {
		slog.Error("could not start session", "userId", user.ID, "err", err)
		a.handleLoginError(AsAuthError(err), w, r)
		return
	}
	http.Redirect(w, r, a.getSuccessURL(), http.StatusFound)
}

// parseCredentials reads a username/password pair from a urlencoded form or a JSON body
func parseCredentials(r *http.Request, usernameField, passwordField string) (*Credentials, *AuthError) {
	creds := &Credentials{}
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, NewAuthError(ErrCodeMissingField, "Invalid post body", "")
		}
		creds.Username, _ = data[usernameField].(string)
		creds.Password, _ = data[passwordField].(string)
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, NewAuthError(ErrCodeMissingField, fmt.Sprintf("Error parsing form: %v", err), "")
		}
		creds.Username = r.FormValue(usernameField)
		creds.Password = r.FormValue(passwordField)
	}
	creds.Username = strings.TrimSpace(creds.Username)

	if authErr := creds.Validate(); authErr != nil {
		return nil, authErr
	}
	return creds, nil
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) getSuccessURL() string {
	if a.SuccessURL != "" {
		return a.SuccessURL
	}
	return "/secrets"
}

func (a *LocalAuth) getLoginURL() string {
	if a.LoginURL != "" {
		return a.LoginURL
	}
	return "/login"
}

func (a *LocalAuth) getSignupURL() string {
	if a.SignupURL != "" {
		return a.SignupURL
	}
	return "/register"
}

// handleLoginError handles login errors using the configured handler or a flash + redirect
func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	a.Sessions.AddFlash(r.Context(), FlashError, err.Message)
	http.Redirect(w, r, a.getLoginURL(), http.StatusFound)
}

// handleSignupError handles signup errors using the configured handler or a flash + redirect
func (a *LocalAuth) handleSignupError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	a.Sessions.AddFlash(r.Context(), FlashError, err.Message)
	http.Redirect(w, r, a.getSignupURL(), http.StatusFound)
}
