package rag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"

	"github.com/reportlens/reportlens/rag"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeOpenAIClient(handler http.HandlerFunc) (*openai.Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return openai.NewClientWithConfig(config), server
}

var _ = Describe("OpenAIEmbedder", func() {
	var requests int

	BeforeEach(func() {
		requests = 0
	})

	It("returns one vector per input, ordered by the reported index", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
			var req embeddingRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())

			// Reply out of order; the embedder must restore input order from
			// the index field.
			data := make([]map[string]any, 0, len(req.Input))
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{float32(i), 1, 0},
				})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  req.Model,
			})
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "test-model")
		vectors, err := embedder.Embed(context.Background(), []string{"first", "second", "third"})
		Expect(err).ToNot(HaveOccurred())
		Expect(vectors).To(HaveLen(3))
		Expect(vectors[0][0]).To(Equal(float32(0)))
		Expect(vectors[1][0]).To(Equal(float32(1)))
		Expect(vectors[2][0]).To(Equal(float32(2)))
	})

	It("probes the model once and reports its dimensions", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
			var req embeddingRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())

			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{0.1, 0.2, 0.3, 0.4},
				}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  req.Model,
			})
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "test-model")

		dims, err := embedder.Dimensions(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(dims).To(Equal(4))
		Expect(requests).To(Equal(1))

		// A second call reuses the cached probe.
		_, err = embedder.Dimensions(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(requests).To(Equal(1))
	})

	It("caches an unresolvable model as a persistent initialization error", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "model not found", "type": "invalid_request_error"},
			})
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "no-such-model")

		_, err := embedder.Embed(context.Background(), []string{"text"})
		Expect(err).To(MatchError(rag.ErrEmbeddingFailed))
		Expect(requests).To(Equal(1))

		_, err = embedder.Embed(context.Background(), []string{"text"})
		Expect(err).To(MatchError(rag.ErrEmbeddingFailed))
		Expect(requests).To(Equal(1))
	})

	It("retries the probe after a canceled first call", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
			var req embeddingRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())

			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{0.1, 0.2},
				}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  req.Model,
			})
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "test-model")

		canceled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := embedder.Embed(canceled, []string{"text"})
		Expect(err).To(MatchError(rag.ErrEmbeddingFailed))

		// The caller's cancellation says nothing about the model; the shared
		// embedder must stay usable for the next caller.
		vectors, err := embedder.Embed(context.Background(), []string{"text"})
		Expect(err).ToNot(HaveOccurred())
		Expect(vectors).To(HaveLen(1))

		dims, err := embedder.Dimensions(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(dims).To(Equal(2))
	})

	It("retries the probe after a garbled response", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
			if requests == 1 {
				w.Write([]byte("not json"))
				return
			}

			var req embeddingRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{0.1, 0.2},
				}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  req.Model,
			})
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "test-model")

		_, err := embedder.Embed(context.Background(), []string{"text"})
		Expect(err).To(MatchError(rag.ErrEmbeddingFailed))

		vectors, err := embedder.Embed(context.Background(), []string{"text"})
		Expect(err).ToNot(HaveOccurred())
		Expect(vectors).To(HaveLen(1))
	})

	It("embeds nothing without calling the endpoint", func() {
		client, server := fakeOpenAIClient(func(w http.ResponseWriter, r *http.Request) {
			requests++
		})
		defer server.Close()

		embedder := rag.NewOpenAIEmbedder(client, "test-model")
		vectors, err := embedder.Embed(context.Background(), nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(vectors).To(BeNil())
		Expect(requests).To(Equal(0))
	})
})

var _ = Describe("SharedEmbedder", func() {
	It("returns the same instance for the same model", func() {
		config := openai.DefaultConfig("test-key")
		client := openai.NewClientWithConfig(config)

		a := rag.SharedEmbedder(client, "shared-model-a")
		b := rag.SharedEmbedder(client, "shared-model-a")
		c := rag.SharedEmbedder(client, "shared-model-b")

		Expect(a).To(BeIdenticalTo(b))
		Expect(a).ToNot(BeIdenticalTo(c))
	})
})
