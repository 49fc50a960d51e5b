package agentapi

import (
	"encoding/json"
	"time"
)

// Memory is a single conversation memory record from the agent runtime.
type Memory struct {
	ID        string          `json:"id"`
	EntityID  string          `json:"entityId,omitempty"`
	AgentID   string          `json:"agentId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
	Content   MemoryContent   `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt int64           `json:"createdAt,omitempty"` // epoch milliseconds
}

// MemoryContent holds the message payload of a memory.
type MemoryContent struct {
	Text    string `json:"text,omitempty"`
	Source  string `json:"source,omitempty"`
	Type    string `json:"type,omitempty"`
	InReply string `json:"inReplyTo,omitempty"`
}

// CreatedTime converts the epoch-millisecond timestamp to time.Time.
func (m Memory) CreatedTime() time.Time {
	if m.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.CreatedAt)
}

// IsFromAgent reports whether the memory was produced by the agent itself.
func (m Memory) IsFromAgent() bool {
	return m.AgentID != "" && m.EntityID == m.AgentID
}

// memoriesEnvelope is the upstream response wrapper:
// {success, data:{memories:[...]}}
type memoriesEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Memories []Memory `json:"memories"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// MemoriesOptions are the query parameters for the memories endpoint.
type MemoriesOptions struct {
	// TableName selects the memory table (defaults to "messages" upstream)
	TableName string

	// RoomID filters memories to one room/conversation
	RoomID string

	// ChannelID filters memories to one channel
	ChannelID string

	// IncludeEmbedding requests embedding vectors (large; off by default)
	IncludeEmbedding bool
}

// CacheKey builds the composite cache key for a memories query:
// resource kind plus every parameter that changes the result set.
func (o MemoriesOptions) CacheKey(agentID string) string {
	return "memories:" + agentID + ":" + o.TableName + ":" + o.RoomID + ":" + o.ChannelID
}
