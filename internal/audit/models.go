// Package audit appends immutable event records for every claim-request
// state transition. Entries are the one persisted wire format downstream
// tooling depends on; field names are frozen by their JSON tags.
package audit

import (
	"time"

	id "claimgate/pkg/domain"
)

// Event names one auditable action. One entry is written per state
// transition, plus the gate acceptance itself.
type Event string

const (
	EventGateAccepted       Event = "gate.accepted"
	EventClaimSent          Event = "claim.sent"
	EventClaimUsed          Event = "claim.used"
	EventClaimExpired       Event = "claim.expired"
	EventClaimResent        Event = "claim.resent"
	EventEmailChangeRequest Event = "claim.emailChangeRequested"
	EventEmailChanged       Event = "claim.emailChanged"
)

// Entry is a single append-only audit record. Email addresses appear only as
// a one-way hash; the plaintext never reaches audit storage.
type Entry struct {
	LogID     string            `json:"logId"`
	Day       string            `json:"day"` // UTC day bucket, YYYY-MM-DD
	Event     Event             `json:"event"`
	Actor     string            `json:"actor"` // identity subject, or "system"
	Tenant    string            `json:"tenant"`
	LPID      string            `json:"lpId"`
	RequestID id.RequestID      `json:"requestId"`
	EmailHash string            `json:"emailHash"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// DayBucket formats the UTC day partition key for a timestamp.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
