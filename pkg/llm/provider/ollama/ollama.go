// Package ollama implements the provider adapter for a local or remote
// Ollama server. Ollama streams newline-delimited JSON rather than SSE and
// requires no API key.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercompute/fable/pkg/llm"
)

const defaultBaseURL = "http://localhost:11434"

// provider implements the Provider interface for Ollama.
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

func (p *provider) Name() string { return "ollama" }

func (p *provider) RequiresKey() bool { return false }

func (p *provider) StreamChat(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (llm.Stream, error) {
	httpResp, err := p.send(ctx, cred, req, true)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &stream{
		scanner: scanner,
		body:    httpResp.Body,
	}, nil
}

func (p *provider) Complete(ctx context.Context, cred llm.Credential, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpResp, err := p.send(ctx, cred, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var chunk ollamaChunk
	if err := json.NewDecoder(httpResp.Body).Decode(&chunk); err != nil {
		return nil, llm.MalformedError{Provider: p.Name(), Err: err}
	}
	if chunk.Error != "" {
		return nil, llm.UpstreamError{Provider: p.Name(), Status: http.StatusOK, Message: chunk.Error}
	}

	return &llm.ChatResponse{
		Model:      chunk.Model,
		Text:       chunk.Message.Content,
		StopReason: normalizeDoneReason(chunk.DoneReason),
	}, nil
}

func (p *provider) send(ctx context.Context, cred llm.Credential, req *llm.ChatRequest, streaming bool) (*http.Response, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	var options *ollamaOptions
	if req.Temperature != nil || req.MaxTokens > 0 {
		options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   streaming,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	baseURL := cred.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	target := strings.TrimRight(baseURL, "/") + "/api/chat"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(httpResp.Body)

		message := ""
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errBody); err == nil {
			message = errBody.Error
		}

		if httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, llm.RateLimitError{Provider: p.Name(), Message: message}
		}
		return nil, llm.UpstreamError{Provider: p.Name(), Status: httpResp.StatusCode, Message: message}
	}

	return httpResp, nil
}

func normalizeDoneReason(reason string) string {
	switch reason {
	case "length":
		return llm.StopLength
	default:
		return llm.StopEnd
	}
}

// stream decodes Ollama NDJSON lines into normalized deltas.
type stream struct {
	scanner *bufio.Scanner
	body    io.Closer

	done bool
}

func (s *stream) Next() (*llm.StreamChunk, error) {
	if s.done {
		return nil, nil
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, llm.MalformedError{Provider: "ollama", Err: err}
		}
		if chunk.Error != "" {
			return nil, llm.UpstreamError{Provider: "ollama", Status: http.StatusOK, Message: chunk.Error}
		}

		if chunk.Done {
			s.done = true
			return &llm.StreamChunk{
				Text:       chunk.Message.Content,
				Done:       true,
				StopReason: normalizeDoneReason(chunk.DoneReason),
			}, nil
		}

		if chunk.Message.Content == "" {
			continue
		}
		return &llm.StreamChunk{Text: chunk.Message.Content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, llm.TransportError{Provider: "ollama", Err: err}
	}

	// Upstream closed without a done line.
	s.done = true
	return &llm.StreamChunk{Done: true, StopReason: llm.StopEnd}, nil
}

func (s *stream) Close() error {
	return s.body.Close()
}
