package whisper

import (
	"context"
	"time"
)

// User is the single persistent record of the system. A record originates either from a
// local registration (Username + Password) or from a federated login (GoogleID only).
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"-"` // stored form only: bcrypt hash or fernet token
	GoogleID  string    `json:"google_id,omitempty"`
	Secrets   []string  `json:"secrets"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"` // optimistic locking version
}

// HasPassword reports whether the record can be used for local login.
// Records created through OAuth never carry a password.
func (u *User) HasPassword() bool {
	return u != nil && u.Password != ""
}

// UserQuery selects a user by one of its unique keys. Exactly one field should be set.
type UserQuery struct {
	Username string
	GoogleID string
}

// IsEmpty returns true if no key is set on the query
func (q UserQuery) IsEmpty() bool {
	return q.Username == "" && q.GoogleID == ""
}

// UserStore is the credential store. Implementations live under stores/.
//
// All methods return errors wrapping ErrNotFound when the record is absent and
// ErrStoreUnavailable for I/O faults, so callers can branch with errors.Is.
type UserStore interface {
	// GetUserById retrieves a user by its store-assigned ID
	GetUserById(ctx context.Context, userId string) (*User, error)

	// FindUser retrieves a user by username or googleId
	FindUser(ctx context.Context, query UserQuery) (*User, error)

	// CreateUser assigns a fresh ID and persists the record. It fails with
	// ErrDuplicateIdentity if the username or googleId is already taken.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// SaveUser overwrites an existing record (full document write)
	SaveUser(ctx context.Context, user *User) error

	// AppendSecret atomically appends one secret to the user's list
	AppendSecret(ctx context.Context, userId string, secret string) error
}
