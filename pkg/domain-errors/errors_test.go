package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	err := New(CodeConflict, "already claimed")
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, HasCode(wrapped, CodeConflict))

	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
}

func TestWrapPreservesChain(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(inner, CodeInternal, "store unavailable")
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, CodeInternal, GetCode(err))
}

func TestWithField(t *testing.T) {
	err := New(CodeForbidden, "email mismatch").
		WithField("claimEmail", "a@x.com").
		WithField("userEmail", "b@x.com")

	fields := Fields(err)
	assert.Equal(t, "a@x.com", fields["claimEmail"])
	assert.Equal(t, "b@x.com", fields["userEmail"])

	// original stays untouched
	base := New(CodeForbidden, "email mismatch")
	derived := base.WithField("k", "v")
	assert.Nil(t, base.Fields)
	assert.NotNil(t, derived.Fields)
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:   http.StatusBadRequest,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodeGone:         http.StatusGone,
		CodeRateLimited:  http.StatusTooManyRequests,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
