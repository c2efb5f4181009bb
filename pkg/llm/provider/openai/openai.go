// Package openai implements the provider adapter for OpenAI's Chat
// Completions API. Streamed completions arrive as SSE events carrying
// choices[0].delta.content fragments, terminated by a "[DONE]" sentinel.
package openai

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

const defaultBaseURL = "https://api.openai.com"

// provider implements the Provider interface for OpenAI.
type provider struct {
	httpClient *http.Client
}

func New() *provider {
	return &provider{
		httpClient: &http.Client{
			// LLM responses can take a while, especially long narrative turns
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *provider) Name() string { return "openai" }

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

	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.MalformedError{Provider: p.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, llm.MalformedError{Provider: p.Name(), Err: fmt.Errorf("response has no choices")}
	}

	choice := resp.Choices[0]
	return &llm.ChatResponse{
		Model:      resp.Model,
		Text:       choice.Message.Content,
		StopReason: normalizeFinishReason(choice.FinishReason),
	}, nil
}

// send builds the wire request, performs the HTTP call, and maps non-success
// statuses to taxonomy errors. The caller owns the response body.
func (p *provider) send(ctx context.Context, cred llm.Credential, req *llm.ChatRequest, streaming bool) (*http.Response, error) {
	messages := make([]openaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openaiMessage{Role: msg.Role, Content: msg.Content})
	}

	payload, err := json.Marshal(openaiRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      streaming,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	baseURL := cred.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	target := strings.TrimRight(baseURL, "/") + "/v1/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.APIKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, p.mapErrorResponse(httpResp)
	}

	return httpResp, nil
}

// mapErrorResponse converts a non-2xx upstream response into a taxonomy error.
func (p *provider) mapErrorResponse(httpResp *http.Response) error {
	body, _ := io.ReadAll(httpResp.Body)

	message := ""
	var errBody openaiErrorBody
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

func normalizeFinishReason(reason string) string {
	switch reason {
	case "length":
		return llm.StopLength
	default:
		return llm.StopEnd
	}
}

// stream decodes OpenAI SSE chunks into normalized deltas.
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
			return nil, llm.TransportError{Provider: "openai", Err: err}
		}
		if ev == nil || ev.Data == "[DONE]" {
			// Upstream exhausted: emit the terminal chunk with whatever
			// stop reason the final delta carried.
			s.done = true
			return &llm.StreamChunk{Done: true, StopReason: s.stopReason}, nil
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return nil, llm.MalformedError{Provider: "openai", Err: err}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			// The finish chunk usually has no content; remember the reason
			// and keep reading until [DONE].
			s.stopReason = normalizeFinishReason(*choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}

		return &llm.StreamChunk{Text: choice.Delta.Content}, nil
	}
}

func (s *stream) Close() error {
	return s.body.Close()
}
