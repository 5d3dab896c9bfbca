// Package domain holds typed identifiers shared across modules. Wrapping
// uuid.UUID keeps signatures honest: a RequestID cannot be passed where a
// MemoryID is expected.
package domain

import "github.com/google/uuid"

// RequestID identifies a single claim request for its whole lifecycle.
type RequestID uuid.UUID

func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

func (id RequestID) String() string { return uuid.UUID(id).String() }

func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText keeps the canonical string form on the wire. Defined types do
// not inherit uuid.UUID's encoding methods, so without this JSON encodes the
// raw byte array.
func (id RequestID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *RequestID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

// MemoryID identifies a content record created at claim time.
type MemoryID uuid.UUID

func NewMemoryID() MemoryID {
	return MemoryID(uuid.New())
}

func ParseMemoryID(s string) (MemoryID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MemoryID{}, err
	}
	return MemoryID(u), nil
}

func (id MemoryID) String() string { return uuid.UUID(id).String() }

func (id MemoryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id MemoryID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *MemoryID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}
