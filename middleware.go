package whisper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// Session keys
const (
	loggedInUserKey = "loggedInUserId"
	flashKeyPrefix  = "flash."
)

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

type userContextKey struct{}

type userFaultContextKey struct{}

// SessionManager carries a request's identity between requests. The session only ever
// holds the user id; the record is re-read from the store on every request.
type SessionManager struct {
	Session *scs.SessionManager
	Users   UserStore

	// Where EnsureUser sends anonymous requests. Defaults to /login
	LoginURL string

	// Called by EnsureUser when the store cannot be read. Defaults to a 503.
	OnStoreFault func(err error, w http.ResponseWriter, r *http.Request)
}

// NewSessionManager creates a session manager over the given scs store.
// A nil store keeps sessions in process memory.
func NewSessionManager(users UserStore, store scs.Store, lifetime time.Duration, secureCookies bool) *SessionManager {
	session := scs.New()
	if store != nil {
		session.Store = store
	}
	if lifetime > 0 {
		session.Lifetime = lifetime
	}
	session.Cookie.Name = "whisper_session"
	session.Cookie.HttpOnly = true
	session.Cookie.SameSite = http.SameSiteLaxMode
	session.Cookie.Secure = secureCookies
	return &SessionManager{Session: session, Users: users, LoginURL: "/login"}
}

// LoadAndSave loads the session for every request and commits it on the way out
func (s *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return s.Session.LoadAndSave(next)
}

// Login moves the session to Authenticated(user.ID). The token is renewed first so a
// token planted before login is never promoted.
func (s *SessionManager) Login(ctx context.Context, user *User) error {
	if err := s.Session.RenewToken(ctx); err != nil {
		return err
	}
	s.Session.Put(ctx, loggedInUserKey, user.ID)
	return nil
}

// Logout destroys the session. Failures are logged and swallowed; the caller
// redirects regardless.
func (s *SessionManager) Logout(ctx context.Context) {
	if err := s.Session.Destroy(ctx); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
}

// LoggedInUserId returns the id held in the session, or "" when anonymous
func (s *SessionManager) LoggedInUserId(ctx context.Context) string {
	return s.Session.GetString(ctx, loggedInUserKey)
}

// CurrentUser resolves the session to a full record. It returns (nil, nil) for an
// anonymous session, including one whose user no longer exists; such stale ids are
// dropped from the session. Store faults are returned as errors.
func (s *SessionManager) CurrentUser(ctx context.Context) (*User, error) {
	userId := s.LoggedInUserId(ctx)
	if userId == "" {
		return nil, nil
	}
	user, err := s.Users.GetUserById(ctx, userId)
	if errors.Is(err, ErrNotFound) {
		slog.Info("Session refers to a missing user, treating as anonymous", "userId", userId)
		s.Session.Remove(ctx, loggedInUserKey)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

/**
 * Fetches the user from the session and makes it available to downstream
 * handlers through UserFromContext.
 *
 * Note this does not perform any redirects if a valid user does not exist.
 * To also enforce a user exists, use EnsureUser. A store fault leaves the user
 * unset and is reported through UserFaultFromContext.
 */
func (s *SessionManager) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.CurrentUser(r.Context())
		if err != nil {
			slog.Warn("could not resolve session user", "err", err)
			r = r.WithContext(context.WithValue(r.Context(), userFaultContextKey{}, err))
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

// EnsureUser redirects anonymous requests to the login page.
func (s *SessionManager) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.CurrentUser(r.Context())
		if err != nil {
			slog.Warn("could not resolve session user", "err", err)
			if s.OnStoreFault != nil {
				s.OnStoreFault(err, w, r)
			} else {
				http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			}
			return
		}
		if user == nil {
			http.Redirect(w, r, s.LoginURL, http.StatusFound)
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

// UserFromContext returns the user placed by ExtractUser or EnsureUser, or nil
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// UserFaultFromContext returns the store error ExtractUser hit while resolving the
// session, or nil. A nil user with a nil fault means the request is anonymous.
func UserFaultFromContext(ctx context.Context) error {
	err, _ := ctx.Value(userFaultContextKey{}).(error)
	return err
}

func withUser(r *http.Request, user *User) *http.Request {
	if user == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), userContextKey{}, user))
}

// AddFlash queues a one-shot notice shown on the next rendered page
func (s *SessionManager) AddFlash(ctx context.Context, kind, message string) {
	key := flashKeyPrefix + kind
	messages, _ := s.Session.Get(ctx, key).([]string)
	s.Session.Put(ctx, key, append(messages, message))
}

// PopFlashes returns and clears the pending notices of one kind
func (s *SessionManager) PopFlashes(ctx context.Context, kind string) []string {
	messages, _ := s.Session.Pop(ctx, flashKeyPrefix+kind).([]string)
	return messages
}
