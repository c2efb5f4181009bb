package llm

// Stream is a sequence of normalized text deltas from one streaming chat
// completion. Next returns nil, nil after the terminal chunk has been
// consumed. Close releases the underlying connection and is safe to call at
// any point, including mid-stream on client cancellation.
type Stream interface {
	Next() (*StreamChunk, error)
	Close() error
}

// StreamChunk is a single normalized delta in a streaming response. The
// provider adapters decode their native wire chunks (SSE or NDJSON) into
// this shape.
type StreamChunk struct {
	// Text is the partial content carried by this chunk. May be empty on
	// the terminal chunk.
	Text string `json:"text"`

	// Done marks the final chunk of the stream.
	Done bool `json:"done"`

	// StopReason is only set on the final chunk.
	StopReason string `json:"stop_reason,omitempty"`
}
