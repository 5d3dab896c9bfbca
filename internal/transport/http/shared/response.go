// Package shared holds response helpers used by every HTTP handler, keeping
// status mapping and the error envelope in one place.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "claimgate/pkg/domain-errors"
)

// errorBody is the stable wire envelope for failures. The three optional
// fields appear only on the email-mismatch rejection so callers can route
// into the email-change sub-flow.
type errorBody struct {
	Error      string `json:"error"`
	ErrorType  string `json:"errorType,omitempty"`
	ClaimEmail string `json:"claimEmail,omitempty"`
	UserEmail  string `json:"userEmail,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are silently
// dropped; by then the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into the envelope and status code.
// Unknown errors become opaque 500s; internal detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	body := errorBody{Error: dErrors.Message(err)}
	if code == dErrors.CodeInternal {
		body.Error = "internal error"
	}

	fields := dErrors.Fields(err)
	body.ErrorType = fields["errorType"]
	body.ClaimEmail = fields["claimEmail"]
	body.UserEmail = fields["userEmail"]

	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
