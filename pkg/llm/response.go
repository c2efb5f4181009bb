package llm

// ChatResponse is a provider-agnostic non-streaming completion result.
type ChatResponse struct {
	// Model that generated the response.
	Model string `json:"model"`

	// Text is the concatenated assistant text content.
	Text string `json:"text"`

	// StopReason is the normalized finish reason (see stop reason
	// constants below).
	StopReason string `json:"stop_reason,omitempty"`
}

// Normalized stop reasons. Providers map their native finish reasons onto
// these; StopLength signals truncation due to an output-length ceiling and
// is surfaced to users as an actionable error when the completion is empty.
const (
	StopEnd    = "end"
	StopLength = "length"
)

// ErrorResponse is the JSON error body returned by HTTP handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}
