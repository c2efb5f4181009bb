// Package llm defines the provider-agnostic request, response, and streaming
// types used by the conversation engine, plus the upstream error taxonomy.
// Provider-specific wire formats live under pkg/llm/provider.
package llm

// Message is a single role-tagged message in a chat completion request.
// The engine is text-only: narrative prose in, narrative prose out.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}
