package anthropic

// anthropicRequest is the Messages API request wire format. MaxTokens is a
// required field for Anthropic.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the non-streaming Messages API response.
type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// anthropicStreamEvent covers the union of streaming event payloads the
// adapter cares about. The SSE event type selects which fields are set:
//
//   - content_block_delta: Delta.Text carries the fragment
//   - message_delta:       Delta.StopReason carries the finish reason
//   - error:               Error carries the upstream failure
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error *anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicErrorBody is the error envelope returned with non-2xx statuses.
type anthropicErrorBody struct {
	Error *anthropicError `json:"error"`
}
