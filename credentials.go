package whisper

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/hkdf"
)

// Credentials represents a local username/password pair from a login or register form
type Credentials struct {
	Username string
	Password string
}

// Validate checks that both fields are present
func (c *Credentials) Validate() *AuthError {
	if strings.TrimSpace(c.Username) == "" {
		return NewAuthError(ErrCodeMissingField, "Username is required", "username")
	}
	if c.Password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	return nil
}

// PasswordCodec converts a plaintext password into its stored form and checks a
// plaintext against a stored form. A mismatch is reported as (false, nil); errors are
// reserved for stored forms that cannot be processed at all.
type PasswordCodec interface {
	Encode(plaintext string) (string, error)
	Verify(plaintext, stored string) (bool, error)
}

// BcryptCodec stores passwords as salted bcrypt hashes.
type BcryptCodec struct {
	// Cost defaults to bcrypt.DefaultCost
	Cost int
}

func (c BcryptCodec) cost() int {
	if c.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return c.Cost
}

func (c BcryptCodec) Encode(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (c BcryptCodec) Verify(plaintext, stored string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("invalid password hash: %w", err)
}

// ErrUndecryptable is returned when a stored token was not produced by any configured key.
var ErrUndecryptable = errors.New("stored password cannot be decrypted")

// tokens never expire; a negative ttl disables the age check
const fernetNoTTL = -1

// FernetCodec encrypts passwords at rest with a process-wide symmetric key.
//
// The first key encrypts; every key is tried on decrypt, which allows rotation.
// Verify decrypts and compares plaintexts with ==. That comparison is not
// constant-time and one shared key protects every record.
type FernetCodec struct {
	keys []*fernet.Key
}

// NewFernetCodec builds a codec from one or more secrets. Each secret is either an
// encoded fernet key (url-safe base64 of 32 bytes) or an arbitrary passphrase that
// is stretched to a key with HKDF-SHA256.
func NewFernetCodec(secrets ...string) (*FernetCodec, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("at least one encryption secret is required")
	}
	out := &FernetCodec{}
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return nil, fmt.Errorf("empty encryption secret")
		}
		key, err := fernet.DecodeKey(secret)
		if err != nil {
			if key, err = deriveFernetKey(secret); err != nil {
				return nil, err
			}
		}
		out.keys = append(out.keys, key)
	}
	return out, nil
}

func deriveFernetKey(passphrase string) (*fernet.Key, error) {
	var key fernet.Key
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("whisper field encryption"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &key, nil
}

func (c *FernetCodec) Encode(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to encrypt password: %w", err)
	}
	return string(tok), nil
}

// Decode returns the plaintext held in a stored token
func (c *FernetCodec) Decode(stored string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(stored), fernetNoTTL, c.keys)
	if msg == nil {
		return "", ErrUndecryptable
	}
	return string(msg), nil
}

func (c *FernetCodec) Verify(plaintext, stored string) (bool, error) {
	decoded, err := c.Decode(stored)
	if err != nil {
		return false, err
	}
	return decoded == plaintext, nil
}
