package models

// GateRequest is the common admission input. The proof travels separately;
// see the admission package.
type GateRequest struct {
	Email       string `json:"email"`
	Tenant      string `json:"tenant"`
	LPID        string `json:"lpId"`
	ProductType string `json:"productType"`

	// Source-specific proofs; exactly one is set per call.
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
	StoreToken     string `json:"storeToken,omitempty"`
}

// GateResponse returns the created request's identifier.
type GateResponse struct {
	RequestID string `json:"requestId"`
}

// ExchangeRequest redeems a claim token. The identity credential arrives in
// the Authorization header, not the body.
type ExchangeRequest struct {
	Token string `json:"token"`
}

// ExchangeResponse reports the newly owned content record.
type ExchangeResponse struct {
	MemoryID    string `json:"memoryId"`
	RedirectURL string `json:"redirectUrl"`
}

// EmailChangeRequest asks to redirect a claim to a new address.
type EmailChangeRequest struct {
	NewEmail string `json:"newEmail"`
}

// ResendRequest re-issues the delivery for an un-claimed request.
type ResendRequest struct {
	Token string `json:"token"`
}

// ErrorResponse is the stable error envelope. ErrorType and the email pair
// are populated only for the email-mismatch case so the caller can route to
// the email-change sub-flow.
type ErrorResponse struct {
	Error      string `json:"error"`
	ErrorType  string `json:"errorType,omitempty"`
	ClaimEmail string `json:"claimEmail,omitempty"`
	UserEmail  string `json:"userEmail,omitempty"`
}
