package poller

import (
	"sort"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
)

// Conversation is a derived grouping of memories sharing a room.
type Conversation struct {
	ID            string    `json:"id"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	LastMessage   string    `json:"last_message"`
	LastSender    string    `json:"last_sender"`
}

// groupConversations derives per-room conversation summaries from a flat
// memory list, newest conversation first. Memories without a room are
// grouped under their channel, and skipped when neither is set.
func groupConversations(memories []agentapi.Memory) []Conversation {
	byRoom := make(map[string][]agentapi.Memory)
	for _, m := range memories {
		key := m.RoomID
		if key == "" {
			key = m.ChannelID
		}
		if key == "" {
			continue
		}
		byRoom[key] = append(byRoom[key], m)
	}

	conversations := make([]Conversation, 0, len(byRoom))
	for id, items := range byRoom {
		sort.Slice(items, func(i, j int) bool {
			return items[i].CreatedAt < items[j].CreatedAt
		})
		last := items[len(items)-1]
		sender := last.EntityID
		if last.IsFromAgent() {
			sender = last.AgentID
		}
		conversations = append(conversations, Conversation{
			ID:            id,
			MessageCount:  len(items),
			LastMessageAt: last.CreatedTime(),
			LastMessage:   last.Content.Text,
			LastSender:    sender,
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations
}
