package whisper_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panyam/whisper"
)

func TestAsAuthError(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{whisper.ErrNotFound, whisper.ErrCodeUserNotFound, http.StatusNotFound},
		{whisper.ErrWrongCredential, whisper.ErrCodeInvalidCreds, http.StatusUnauthorized},
		{whisper.ErrDuplicateIdentity, whisper.ErrCodeUsernameTaken, http.StatusConflict},
		{fmt.Errorf("%w: disk full", whisper.ErrStoreUnavailable), whisper.ErrCodeStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: denied", whisper.ErrUpstreamAuth), whisper.ErrCodeUpstream, http.StatusBadGateway},
		{errors.New("boom"), whisper.ErrCodeInternal, http.StatusInternalServerError},
		{whisper.NewAuthError(whisper.ErrCodeMissingField, "Username is required", "username"), whisper.ErrCodeMissingField, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			authErr := whisper.AsAuthError(tt.err)
			assert.Equal(t, tt.code, authErr.Code)
			assert.Equal(t, tt.status, authErr.Status())
			assert.NotEmpty(t, authErr.Message)
		})
	}
}

func TestAsAuthErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("lookup: %w", whisper.ErrNotFound)
	authErr := whisper.AsAuthError(cause)
	assert.ErrorIs(t, authErr, whisper.ErrNotFound)
	assert.Nil(t, whisper.AsAuthError(nil))
}
