package llm

// ChatRequest is a provider-agnostic chat completion request. Each provider
// implementation converts it into its own wire format.
type ChatRequest struct {
	// Model name (e.g. "gpt-4o-mini", "claude-haiku-4-5", "llama3.2").
	Model string `json:"model"`

	// System is the system prompt. Some providers carry it as a top-level
	// field, others as the leading message.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order,
	// ending with the user message being answered.
	Messages []Message `json:"messages"`

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature, when non-nil, overrides the provider default.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Credential carries the resolved secret and endpoint override for one
// upstream call. An empty BaseURL selects the provider's default endpoint.
type Credential struct {
	APIKey  string
	BaseURL string
}
