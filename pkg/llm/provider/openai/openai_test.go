package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/papercompute/fable/pkg/llm"
	"github.com/papercompute/fable/pkg/sse"
)

// failingReader yields its error on every read.
type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

// fakeUpstream captures the last request body and replies with a canned
// status and payload.
type fakeUpstream struct {
	status  int
	body    string
	headers http.Header

	lastPath string
	lastBody []byte
	lastAuth string
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastBody, _ = io.ReadAll(r.Body)
		f.lastAuth = r.Header.Get("Authorization")
		for k, vs := range f.headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(f.status)
		w.Write([]byte(f.body))
	}
}

func drainStream(s llm.Stream) (texts []string, final *llm.StreamChunk, err error) {
	for {
		chunk, nerr := s.Next()
		if nerr != nil {
			return texts, nil, nerr
		}
		if chunk == nil {
			return texts, final, nil
		}
		if chunk.Done {
			final = chunk
			return texts, final, nil
		}
		texts = append(texts, chunk.Text)
	}
}

var _ = Describe("Provider", func() {
	var (
		upstream *fakeUpstream
		server   *httptest.Server
		prov     = New()
		cred     llm.Credential
	)

	BeforeEach(func() {
		upstream = &fakeUpstream{status: http.StatusOK}
		server = httptest.NewServer(upstream.handler())
		cred = llm.Credential{APIKey: "sk-test", BaseURL: server.URL}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("StreamChat", func() {
		It("decodes SSE deltas and the [DONE] sentinel", func() {
			upstream.body = "" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"Once \"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"upon\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
				"data: [DONE]\n\n"

			stream, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			texts, final, err := drainStream(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts).To(Equal([]string{"Once ", "upon"}))
			Expect(final).NotTo(BeNil())
			Expect(final.Done).To(BeTrue())
			Expect(final.StopReason).To(Equal(llm.StopEnd))
		})

		It("surfaces a length finish reason on the terminal chunk", func() {
			upstream.body = "" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"trunc\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"length\"}]}\n\n" +
				"data: [DONE]\n\n"

			stream, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			texts, final, err := drainStream(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts).To(Equal([]string{"trunc"}))
			Expect(final.StopReason).To(Equal(llm.StopLength))
		})

		It("returns nil after the terminal chunk", func() {
			upstream.body = "data: [DONE]\n\n"

			stream, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			chunk, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Done).To(BeTrue())

			chunk, err = stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk).To(BeNil())
		})

		It("sends the system prompt as the leading message", func() {
			upstream.body = "data: [DONE]\n\n"

			stream, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:     "gpt-4o-mini",
				System:    "You are the narrator.",
				Messages:  []llm.Message{llm.NewMessage("user", "begin")},
				MaxTokens: 512,
			})
			Expect(err).NotTo(HaveOccurred())
			stream.Close()

			Expect(upstream.lastPath).To(Equal("/v1/chat/completions"))
			Expect(upstream.lastAuth).To(Equal("Bearer sk-test"))

			body := string(upstream.lastBody)
			Expect(gjson.Get(body, "stream").Bool()).To(BeTrue())
			Expect(gjson.Get(body, "max_tokens").Int()).To(Equal(int64(512)))
			Expect(gjson.Get(body, "messages.0.role").String()).To(Equal("system"))
			Expect(gjson.Get(body, "messages.0.content").String()).To(Equal("You are the narrator."))
			Expect(gjson.Get(body, "messages.1.role").String()).To(Equal("user"))
		})

		It("maps a dropped connection to a transport error", func() {
			body := io.MultiReader(
				strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n"),
				failingReader{err: errors.New("connection reset by peer")},
			)
			s := &stream{reader: sse.NewReader(body), body: io.NopCloser(body)}

			chunk, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Text).To(Equal("par"))

			_, err = s.Next()
			var transErr llm.TransportError
			Expect(errors.As(err, &transErr)).To(BeTrue())
			Expect(transErr.Provider).To(Equal("openai"))
		})

		It("maps undecodable chunk JSON to a malformed error", func() {
			upstream.body = "data: {not json\n\n"

			stream, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			_, err = stream.Next()
			var malErr llm.MalformedError
			Expect(errors.As(err, &malErr)).To(BeTrue())
		})

		It("maps a 401 to an auth error", func() {
			upstream.status = http.StatusUnauthorized
			upstream.body = `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`

			_, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			var authErr llm.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Provider).To(Equal("openai"))
			Expect(authErr.Message).To(ContainSubstring("Incorrect API key"))
		})

		It("maps a 429 to a rate limit error", func() {
			upstream.status = http.StatusTooManyRequests
			upstream.body = `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`

			_, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			var rateErr llm.RateLimitError
			Expect(errors.As(err, &rateErr)).To(BeTrue())
			Expect(rateErr.Provider).To(Equal("openai"))
		})

		It("maps other failures to an upstream error with the status", func() {
			upstream.status = http.StatusInternalServerError
			upstream.body = `{"error":{"message":"The server had an error"}}`

			_, err := prov.StreamChat(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			var upErr llm.UpstreamError
			Expect(errors.As(err, &upErr)).To(BeTrue())
			Expect(upErr.Status).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Complete", func() {
		It("decodes a non-streaming response", func() {
			resp := map[string]any{
				"model": "gpt-4o-mini",
				"choices": []map[string]any{{
					"message":       map[string]any{"content": "The lantern flickers."},
					"finish_reason": "stop",
				}},
			}
			raw, _ := json.Marshal(resp)
			upstream.body = string(raw)

			result, err := prov.Complete(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("The lantern flickers."))
			Expect(result.StopReason).To(Equal(llm.StopEnd))

			Expect(gjson.GetBytes(upstream.lastBody, "stream").Bool()).To(BeFalse())
		})

		It("rejects a response with no choices", func() {
			upstream.body = `{"model":"gpt-4o-mini","choices":[]}`

			_, err := prov.Complete(context.Background(), cred, &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []llm.Message{llm.NewMessage("user", "go")},
			})
			var malErr llm.MalformedError
			Expect(errors.As(err, &malErr)).To(BeTrue())
		})
	})

	Describe("RequiresKey", func() {
		It("requires an API key", func() {
			Expect(prov.RequiresKey()).To(BeTrue())
			Expect(prov.Name()).To(Equal("openai"))
		})
	})
})
