package email

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize canonicalizes an address for comparison and rate-limit keying:
// trimmed and lower-cased. Plus-suffix stripping is deliberately not done;
// a+b@x.com and a@x.com are distinct principals.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Hash returns a hex-encoded SHA-256 digest of the normalized address.
// Audit metadata stores this instead of the plaintext address.
func Hash(addr string) string {
	sum := sha256.Sum256([]byte(Normalize(addr)))
	return hex.EncodeToString(sum[:])
}

// IsValid performs a minimal structural check. Deliverability is proven by
// the claim flow itself, so anything stricter here just rejects real users.
func IsValid(addr string) bool {
	addr = strings.TrimSpace(addr)
	at := strings.IndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	return !strings.ContainsAny(addr, " \t\r\n")
}

// DeriveNameFromEmail guesses a display name pair from the local part of an
// address. Used to prefill the content-record skeleton at claim time.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
