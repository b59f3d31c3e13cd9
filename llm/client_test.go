package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/docstack/answerbox/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
)

// fakeBackend emulates an OpenAI-compatible server. Models listed in
// failing get a 500 on chat completions.
type fakeBackend struct {
	server   *httptest.Server
	failing  map[string]bool
	requests []openai.ChatCompletionRequest
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{failing: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.requests = append(b.requests, req)

		if b.failing[req.Model] {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"model blew up"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "  answer from " + req.Model + "  "}},
			},
		})
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"llama3"},{"id":"mistral"}]}`))
	})

	b.server = httptest.NewServer(mux)
	return b
}

func (b *fakeBackend) client() *llm.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = b.server.URL
	return llm.NewClient(openai.NewClientWithConfig(cfg))
}

var _ = Describe("Client", func() {
	var backend *fakeBackend

	BeforeEach(func() {
		backend = newFakeBackend()
	})

	AfterEach(func() {
		backend.server.Close()
	})

	Describe("Generate", func() {
		It("should return the trimmed completion and the model used", func() {
			result, err := backend.client().Generate(context.Background(), "what is the refund policy?", llm.Settings{
				Model: "llama3",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Response).To(Equal("answer from llama3"))
			Expect(result.ModelUsed).To(Equal("llama3"))
			Expect(result.UsedFallback).To(BeFalse())
		})

		It("should pass the system prompt and generation parameters through", func() {
			_, err := backend.client().Generate(context.Background(), "question", llm.Settings{
				Model:        "llama3",
				SystemPrompt: "be precise",
				Temperature:  0.7,
				TopP:         0.9,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(backend.requests).To(HaveLen(1))
			Expect(backend.requests[0].Messages).To(HaveLen(2))
			Expect(backend.requests[0].Messages[0].Role).To(Equal("system"))
			Expect(backend.requests[0].Messages[0].Content).To(Equal("be precise"))
			Expect(backend.requests[0].Temperature).To(BeNumerically("~", 0.7, 0.001))
		})

		It("should fall back to the secondary model when the primary fails", func() {
			backend.failing["llama3"] = true

			result, err := backend.client().Generate(context.Background(), "question", llm.Settings{
				Model:         "llama3",
				FallbackModel: "mistral",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Response).To(Equal("answer from mistral"))
			Expect(result.ModelUsed).To(Equal("mistral"))
			Expect(result.UsedFallback).To(BeTrue())
		})

		It("should fail when no fallback is configured", func() {
			backend.failing["llama3"] = true

			_, err := backend.client().Generate(context.Background(), "question", llm.Settings{
				Model: "llama3",
			})
			Expect(err).To(HaveOccurred())
		})

		It("should fail when both models fail", func() {
			backend.failing["llama3"] = true
			backend.failing["mistral"] = true

			_, err := backend.client().Generate(context.Background(), "question", llm.Settings{
				Model:         "llama3",
				FallbackModel: "mistral",
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("mistral"))
		})
	})

	Describe("ListModels", func() {
		It("should return the backend's model IDs", func() {
			models, err := backend.client().ListModels(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(models).To(ConsistOf("llama3", "mistral"))
		})
	})

	Describe("CheckConnection", func() {
		It("should succeed against a reachable backend", func() {
			Expect(backend.client().CheckConnection(context.Background())).To(Succeed())
		})

		It("should fail against a dead backend", func() {
			backend.server.Close()
			err := backend.client().CheckConnection(context.Background())
			Expect(err).To(HaveOccurred())
		})
	})
})
