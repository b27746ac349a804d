package whisper

import (
	"log/slog"
	"net/http"
)

// HandleSignup processes user registration. A new account is logged in straight away.
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	creds, authErr := parseCredentials(r, a.getUsernameField(), a.getPasswordField())
	if authErr != nil {
		a.handleSignupError(authErr, w, r)
		return
	}

	user, err := a.Reconciler.RegisterLocal(r.Context(), creds.Username, creds.Password)
	if err != nil {
		slog.Info("error creating user", "err", err)
		a.handleSignupError(AsAuthError(err), w, r)
		return
	}

	if err := a.Sessions.Login(r.Context(), user); err != nil {
		// the account exists; only the automatic login failed
		slog.Error("could not start session after signup", "userId", user.ID, "err", err)
		a.Sessions.AddFlash(r.Context(), FlashError, "Account created. Please log in.")
		http.Redirect(w, r, a.getLoginURL(), http.StatusFound)
		return
	}
	http.Redirect(w, r, a.getSuccessURL(), http.StatusFound)
}
