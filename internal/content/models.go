// Package content creates the memory records that a successful claim
// exchange binds to. The claim core creates these records but does not own
// them; editing lives elsewhere.
package content

import (
	"time"

	id "claimgate/pkg/domain"
	"claimgate/pkg/email"
)

// MemoryStatus is the lifecycle of a content record. The claim core only
// ever produces drafts.
type MemoryStatus string

const (
	MemoryStatusDraft     MemoryStatus = "draft"
	MemoryStatusPublished MemoryStatus = "published"
)

// Memory is a personal content record. OwnerUID is empty while unclaimed and
// set exactly once at claim time.
type Memory struct {
	ID          id.MemoryID  `json:"id"`
	OwnerUID    string       `json:"ownerUid"`
	Tenant      string       `json:"tenant"`
	LPID        string       `json:"lpId"`
	ProductType string       `json:"productType"`
	Title       string       `json:"title"`
	Status      MemoryStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewMemory builds the default draft skeleton for a claiming subject. The
// title is prefilled from the owner's address so the editor never opens blank.
func NewMemory(ownerUID, ownerEmail, tenant, lpID, productType string, now time.Time) *Memory {
	first, _ := email.DeriveNameFromEmail(ownerEmail)
	return &Memory{
		ID:          id.NewMemoryID(),
		OwnerUID:    ownerUID,
		Tenant:      tenant,
		LPID:        lpID,
		ProductType: productType,
		Title:       first + "'s Memories",
		Status:      MemoryStatusDraft,
		CreatedAt:   now,
	}
}
