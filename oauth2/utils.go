package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateCookieName holds the signed state between the redirect and the callback
const StateCookieName = "oauthstate"

const defaultStateTTL = 10 * time.Minute

// StateSigner issues and verifies the short-lived HS256 tokens used as the
// OAuth state parameter.
type StateSigner struct {
	Key []byte
	TTL time.Duration
}

// NewStateSigner creates a signer. A nil key is replaced with a random one, which
// ties issued states to the current process.
func NewStateSigner(key []byte, ttl time.Duration) *StateSigner {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{Key: key, TTL: ttl}
}

func (s *StateSigner) Issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        base64.RawURLEncoding.EncodeToString(nonce),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
	})
	return token.SignedString(s.Key)
}

func (s *StateSigner) Verify(state string) error {
	token, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.Key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid state")
	}
	return nil
}
