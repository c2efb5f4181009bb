package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/credentials"
	"github.com/papercompute/fable/pkg/storage/inmemory"
)

var _ = Describe("Handlers", func() {
	var (
		store     *inmemory.Driver
		compactor *recordingCompactor
		server    *Server
	)

	const conversationID = "conv-1"

	BeforeEach(func() {
		store = inmemory.NewDriver()
		compactor = &recordingCompactor{}

		var err error
		server, err = NewServer(&Config{
			ListenAddr:  "127.0.0.1:0",
			Provider:    "scripted",
			Model:       "test-model",
			Store:       store,
			Credentials: credentials.NewManager(nil, nil),
			Compactor:   compactor,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(server.Shutdown()).To(Succeed())
	})

	request := func(method, path string) (*http.Response, map[string]any) {
		req := httptest.NewRequest(method, path, nil)
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		if len(body) > 0 {
			Expect(json.Unmarshal(body, &decoded)).To(Succeed())
		}
		return resp, decoded
	}

	appendTurn := func(role, text string) *chat.Turn {
		saved, err := store.AppendTurn(context.Background(), &chat.Turn{
			ConversationID: conversationID,
			Role:           role,
			Text:           text,
		})
		Expect(err).NotTo(HaveOccurred())
		return saved
	}

	Describe("GET /ping", func() {
		It("pongs", func() {
			resp, body := request(http.MethodGet, "/ping")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("pong"))
		})
	})

	Describe("GET /metrics", func() {
		It("serves prometheus exposition", func() {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("fable_compactions_scheduled_total"))
		})
	})

	Describe("GET /v1/conversations/:id/turns", func() {
		It("lists recent turns honoring the limit", func() {
			appendTurn(chat.RoleUser, "one")
			appendTurn(chat.RoleAssistant, "two")
			appendTurn(chat.RoleUser, "three")

			resp, body := request(http.MethodGet, "/v1/conversations/conv-1/turns?limit=2")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			turns := body["turns"].([]any)
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].(map[string]any)["text"]).To(Equal("two"))
			Expect(turns[1].(map[string]any)["text"]).To(Equal("three"))
		})

		It("returns an empty list for an unknown conversation", func() {
			resp, body := request(http.MethodGet, "/v1/conversations/missing/turns")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["turns"]).To(BeEmpty())
		})
	})

	Describe("DELETE /v1/conversations/:id/turns/:turnID", func() {
		It("deletes the turn and returns it", func() {
			saved := appendTurn(chat.RoleUser, "to delete")

			resp, body := request(http.MethodDelete, "/v1/conversations/conv-1/turns/"+saved.ID)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["deleted"].(map[string]any)["id"]).To(Equal(saved.ID))
		})

		It("404s for an unknown turn", func() {
			resp, body := request(http.MethodDelete, "/v1/conversations/conv-1/turns/nope")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body["error"]).To(ContainSubstring("not found"))
		})
	})

	Describe("DELETE /v1/conversations/:id/turns/last-pair", func() {
		It("deletes the trailing user/assistant pair", func() {
			appendTurn(chat.RoleUser, "kept")
			appendTurn(chat.RoleAssistant, "kept too")
			appendTurn(chat.RoleUser, "question")
			appendTurn(chat.RoleAssistant, "answer")

			resp, body := request(http.MethodDelete, "/v1/conversations/conv-1/turns/last-pair")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["deleted"].([]any)).To(HaveLen(2))

			turns, err := store.ListTurns(context.Background(), conversationID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[1].Text).To(Equal("kept too"))
		})

		It("409s when the conversation does not end in a pair", func() {
			appendTurn(chat.RoleUser, "dangling question")

			resp, _ := request(http.MethodDelete, "/v1/conversations/conv-1/turns/last-pair")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("POST /v1/conversations/:id/compact", func() {
		It("compacts synchronously and reports old and new summaries", func() {
			Expect(store.UpdateMemory(context.Background(), conversationID, "old summary", nil, 0)).To(Succeed())

			resp, body := request(http.MethodPost, "/v1/conversations/conv-1/compact")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["success"]).To(BeTrue())
			Expect(body["summary"]).To(Equal("old summary"))
			Expect(body["messageCount"]).To(BeEquivalentTo(1))
			Expect(compactor.callCount()).To(Equal(1))
		})
	})
})
