// Package provider defines the uniform adapter interface over the supported
// hosted chat-completion APIs. Each provider implementation knows how to
// build its own wire request, decode its native stream format, and normalize
// provider-specific error payloads into the taxonomy in pkg/llm.
package provider

import (
	"context"

	"github.com/papercompute/fable/pkg/llm"
)

// Provider is the uniform adapter over one hosted chat-completion API.
// Implementations perform outbound network calls only; persistence is the
// caller's concern.
type Provider interface {
	// Name returns the canonical provider name ("openai", "anthropic",
	// "ollama").
	Name() string

	// RequiresKey reports whether the provider needs an API key. The
	// credential resolver fails fast, before any network call, when a
	// key-requiring provider has none.
	RequiresKey() bool

	// StreamChat issues a streaming chat completion. The returned Stream
	// yields normalized deltas terminated by a Done chunk carrying the
	// stop reason.
	StreamChat(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (llm.Stream, error)

	// Complete issues a non-streaming chat completion. Used by the memory
	// summarizer, which needs the whole reply at once.
	Complete(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (*llm.ChatResponse, error)
}
