// Package mailer defines the outbound mail port. Production deployments plug
// a provider-backed Dispatcher in; the log dispatcher serves development and
// tests.
package mailer

import (
	"context"
	"fmt"
	"net/url"
)

// Message is one outbound claim mail.
type Message struct {
	To      string
	Subject string
	// ClaimURL is the single-use link the recipient follows. Bodies are
	// rendered by the provider from these fields; this service never
	// assembles HTML.
	ClaimURL string
	Tenant   string
}

// Dispatcher delivers claim mail. Implementations must treat delivery as
// at-most-once from the caller's perspective: an error means the caller may
// retry the whole flow, so dispatch must not have partially succeeded in a
// user-visible way.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// ClaimURL builds the link embedded in claim mail.
func ClaimURL(baseURL, token string) string {
	return fmt.Sprintf("%s/claim?token=%s", baseURL, url.QueryEscape(token))
}

// ConfirmURL builds the link embedded in email-change confirmation mail.
func ConfirmURL(baseURL, token string) string {
	return fmt.Sprintf("%s/claims/email-change/confirm?token=%s", baseURL, url.QueryEscape(token))
}
