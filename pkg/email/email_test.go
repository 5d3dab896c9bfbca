package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a@x.com", Normalize("  A@X.COM "))
	assert.Equal(t, "a+b@x.com", Normalize("A+B@x.com"))
}

func TestHash(t *testing.T) {
	// Case/whitespace variants hash identically; distinct addresses do not.
	assert.Equal(t, Hash("A@X.com "), Hash("a@x.com"))
	assert.NotEqual(t, Hash("a@x.com"), Hash("b@x.com"))
	assert.Len(t, Hash("a@x.com"), 64)
	// Must never round-trip to the plaintext.
	assert.NotContains(t, Hash("someone@example.com"), "someone")
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("a@x.com"))
	assert.True(t, IsValid("first.last+tag@sub.example.org"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("no-at-sign"))
	assert.False(t, IsValid("@x.com"))
	assert.False(t, IsValid("a@"))
	assert.False(t, IsValid("a b@x.com"))
}

func TestDeriveNameFromEmail(t *testing.T) {
	first, last := DeriveNameFromEmail("jane.doe@example.com")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = DeriveNameFromEmail("solo@example.com")
	assert.Equal(t, "Solo", first)
	assert.Equal(t, "User", last)
}
