package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRequestID("")
		require.Error(t, err)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseRequestID("not-a-uuid")
		require.Error(t, err)
	})

	t.Run("round trips a valid id", func(t *testing.T) {
		raw := uuid.NewString()
		id, err := ParseRequestID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("nil uuid parses but reports IsNil", func(t *testing.T) {
		id, err := ParseRequestID(uuid.Nil.String())
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})
}

func TestIDsMarshalAsUUIDStrings(t *testing.T) {
	req := NewRequestID()
	mem := NewMemoryID()

	data, err := json.Marshal(map[string]any{"requestId": req, "memoryId": mem})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"requestId":"`+req.String()+`"`)
	assert.Contains(t, string(data), `"memoryId":"`+mem.String()+`"`)

	var decoded struct {
		RequestID RequestID `json:"requestId"`
		MemoryID  MemoryID  `json:"memoryId"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded.RequestID)
	assert.Equal(t, mem, decoded.MemoryID)
}

func TestIDsAreDistinctTypes(t *testing.T) {
	req := NewRequestID()
	mem := NewMemoryID()
	assert.NotEqual(t, req.String(), mem.String())

	parsed, err := ParseMemoryID(mem.String())
	require.NoError(t, err)
	assert.Equal(t, mem, parsed)
}
