// Package events normalizes heterogeneous upstream change events into a
// single canonical event type consumed by the adaptive poller.
//
// The real-time session publishes activity in several payload shapes
// depending on transport and server version. Rather than one listener per
// shape, a prioritized extraction-rule list is evaluated once per frame;
// the first rule that matches produces the canonical ChangeEvent.
package events

import (
	"encoding/json"
	"time"
)

// Kind classifies what changed upstream.
type Kind string

// Canonical event kinds
const (
	KindMessage  Kind = "message"
	KindMemory   Kind = "memory"
	KindPresence Kind = "presence"
)

// ChangeEvent is the canonical activity signal. It carries only routing
// identity; the poller re-fetches actual data through its normal path.
type ChangeEvent struct {
	AgentID        string
	RoomID         string
	ConversationID string
	Kind           Kind
	At             time.Time
}

// ExtractRule attempts to produce a ChangeEvent from a decoded payload.
type ExtractRule struct {
	// Name identifies the rule in logs
	Name string

	// Extract returns the event and true when the payload matches
	Extract func(payload map[string]any) (ChangeEvent, bool)
}

// Normalizer maps raw event frames to ChangeEvents through its rule list.
type Normalizer struct {
	rules []ExtractRule
	now   func() time.Time
}

// NewNormalizer creates a normalizer with the given rules, evaluated in order.
func NewNormalizer(rules []ExtractRule) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Normalizer{
		rules: rules,
		now:   time.Now,
	}
}

// Normalize decodes a raw frame and applies the rules in priority order.
// Returns false for frames no rule recognizes.
func (n *Normalizer) Normalize(raw []byte) (ChangeEvent, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ChangeEvent{}, false
	}

	for _, rule := range n.rules {
		if ev, ok := rule.Extract(payload); ok {
			if ev.At.IsZero() {
				ev.At = n.now()
			}
			if ev.ConversationID == "" {
				ev.ConversationID = ev.RoomID
			}
			return ev, true
		}
	}
	return ChangeEvent{}, false
}

// DefaultRules returns the extraction rules for the upstream event shapes
// observed in the wild, most specific first.
func DefaultRules() []ExtractRule {
	return []ExtractRule{
		{
			Name: "message_broadcast",
			Extract: func(p map[string]any) (ChangeEvent, bool) {
				if str(p, "type") != "messageBroadcast" {
					return ChangeEvent{}, false
				}
				return ChangeEvent{
					AgentID: str(p, "agentId"),
					RoomID:  firstStr(p, "roomId", "channelId"),
					Kind:    KindMessage,
				}, true
			},
		},
		{
			Name: "memory_created",
			Extract: func(p map[string]any) (ChangeEvent, bool) {
				if str(p, "event") != "memory:created" {
					return ChangeEvent{}, false
				}
				data, _ := p["data"].(map[string]any)
				return ChangeEvent{
					AgentID: str(data, "agentId"),
					RoomID:  firstStr(data, "roomId", "channelId"),
					Kind:    KindMemory,
				}, true
			},
		},
		{
			Name: "nested_payload",
			Extract: func(p map[string]any) (ChangeEvent, bool) {
				payload, ok := p["payload"].(map[string]any)
				if !ok {
					return ChangeEvent{}, false
				}
				room := firstStr(payload, "roomId", "channelId")
				if room == "" {
					return ChangeEvent{}, false
				}
				return ChangeEvent{
					AgentID: str(payload, "agentId"),
					RoomID:  room,
					Kind:    KindMessage,
				}, true
			},
		},
		{
			// Weakest rule: any frame naming a room counts as activity
			Name: "bare_room",
			Extract: func(p map[string]any) (ChangeEvent, bool) {
				room := firstStr(p, "roomId", "channelId")
				if room == "" {
					return ChangeEvent{}, false
				}
				return ChangeEvent{
					AgentID: str(p, "agentId"),
					RoomID:  room,
					Kind:    KindPresence,
				}, true
			},
		},
	}
}

// str reads a string field from a decoded payload, or ""
func str(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// firstStr returns the first non-empty string among the given keys
func firstStr(p map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := str(p, key); s != "" {
			return s
		}
	}
	return ""
}
