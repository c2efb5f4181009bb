// Package anthropic implements the provider adapter for Anthropic's Messages
// API. Streamed completions arrive as typed SSE events; text fragments ride
// on content_block_delta events and the stop reason on message_delta.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercompute/fable/pkg/llm"
	"github.com/papercompute/fable/pkg/sse"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// defaultMaxTokens applies when the caller leaves MaxTokens unset;
	// the field is mandatory in the Messages API.
	defaultMaxTokens = 2048
)

// provider implements the Provider interface for Anthropic.
type provider struct {
	httpClient *http.Client
}

func New() *provider {
	return &provider{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *provider) Name() string { return "anthropic" }

func (p *provider) RequiresKey() bool { return true }

func (p *provider) StreamChat(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (llm.Stream, error) {
	httpResp, err := p.send(ctx, cred, req, true)
	if err != nil {
		return nil, err
	}

	return &stream{
		reader: sse.NewReader(httpResp.Body),
		body:   httpResp.Body,
	}, nil
}

func (p *provider) Complete(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpResp, err := p.send(ctx, cred, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.TransportError{Provider: p.Name(), Err: err}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.MalformedError{Provider: p.Name(), Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.ChatResponse{
		Model:      resp.Model,
		Text:       text.String(),
		StopReason: normalizeStopReason(resp.StopReason),
	}, nil
}

func (p *provider) send(ctx context.Context, cred llm.Credential, req *llm.ChatRequest, streaming bool) (*http.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	payload, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    messages,
		Stream:      streaming,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	baseURL := cred.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	target := strings.TrimRight(baseURL, "/") + "/v1/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cred.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, p.mapErrorResponse(httpResp)
	}

	return httpResp, nil
}

func (p *provider) mapErrorResponse(httpResp *http.Response) error {
	body, _ := io.ReadAll(httpResp.Body)

	message := ""
	var errBody anthropicErrorBody
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != nil {
		message = errBody.Error.Message
	}

	switch httpResp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.AuthError{Provider: p.Name(), Message: message}
	case http.StatusTooManyRequests:
		return llm.RateLimitError{Provider: p.Name(), Message: message}
	default:
		return llm.UpstreamError{Provider: p.Name(), Status: httpResp.StatusCode, Message: message}
	}
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return llm.StopLength
	default:
		return llm.StopEnd
	}
}

// stream decodes Anthropic SSE events into normalized deltas.
type stream struct {
	reader *sse.Reader
	body   io.Closer

	done       bool
	stopReason string
}

func (s *stream) Next() (*llm.StreamChunk, error) {
	if s.done {
		return nil, nil
	}

	for {
		ev, err := s.reader.Next()
		if err != nil {
			// The SSE reader only fails on read errors, never on framing.
			return nil, llm.TransportError{Provider: "anthropic", Err: err}
		}
		if ev == nil {
			s.done = true
			return &llm.StreamChunk{Done: true, StopReason: s.stopReason}, nil
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			return nil, llm.MalformedError{Provider: "anthropic", Err: err}
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text == "" {
				continue
			}
			return &llm.StreamChunk{Text: event.Delta.Text}, nil

		case "message_delta":
			// Carries the stop reason; the terminal chunk is emitted on
			// message_stop (or stream exhaustion).
			if event.Delta.StopReason != "" {
				s.stopReason = normalizeStopReason(event.Delta.StopReason)
			}

		case "message_stop":
			s.done = true
			return &llm.StreamChunk{Done: true, StopReason: s.stopReason}, nil

		case "error":
			message := ""
			if event.Error != nil {
				message = event.Error.Message
			}
			if event.Error != nil && event.Error.Type == "rate_limit_error" {
				return nil, llm.RateLimitError{Provider: "anthropic", Message: message}
			}
			return nil, llm.UpstreamError{Provider: "anthropic", Status: http.StatusOK, Message: message}

		default:
			// message_start, content_block_start/stop, ping — no content.
		}
	}
}

func (s *stream) Close() error {
	return s.body.Close()
}
