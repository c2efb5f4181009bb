// Package chat defines the core conversation domain types shared by the
// relay, the storage drivers, and the memory compaction pipeline.
package chat

import "time"

// Turn roles. A conversation is an alternating sequence of user and
// assistant turns; system prompts are assembled per request and never
// persisted as turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single persisted message in a conversation. Turns are immutable
// once stored and totally ordered by Seq within their conversation.
type Turn struct {
	// ID is the store-assigned opaque identifier.
	ID string `json:"id"`

	// ConversationID identifies the owning conversation.
	ConversationID string `json:"conversation_id"`

	// Seq is the store-assigned per-conversation sequence number,
	// monotonically increasing across both roles.
	Seq int `json:"seq"`

	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Speaker is an optional character label for the narrative voice.
	Speaker string `json:"speaker,omitempty"`

	// Text is the extracted, normalized narrative text.
	Text string `json:"text"`

	CreatedAt time.Time `json:"created_at"`
}
