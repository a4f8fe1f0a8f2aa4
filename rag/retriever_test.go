package rag_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reportlens/reportlens/rag"
	"github.com/reportlens/reportlens/rag/engine"
	"github.com/reportlens/reportlens/rag/types"
)

var _ = Describe("Retriever", func() {
	var (
		store    *engine.ChromemDB
		registry *rag.Registry
		embedder hashEmbedder
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = hashEmbedder{dims: 128}

		var err error
		store, err = engine.NewChromemDBCollection("reports", GinkgoT().TempDir())
		Expect(err).ToNot(HaveOccurred())

		registry, err = rag.OpenRegistry(filepath.Join(GinkgoT().TempDir(), "registry.db"))
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(registry.Close)
	})

	index := func(documentID string, texts ...string) {
		vectors, err := embedder.Embed(ctx, texts)
		Expect(err).ToNot(HaveOccurred())

		chunks := make([]types.Chunk, len(texts))
		for i, t := range texts {
			chunks[i] = types.Chunk{
				DocumentID: documentID,
				Sequence:   i,
				Text:       t,
				Embedding:  vectors[i],
			}
		}
		Expect(store.Upsert(ctx, documentID, documentID+".txt", chunks)).To(Succeed())
		Expect(registry.Register(types.DocumentRecord{
			ID:         documentID,
			ChunkCount: len(chunks),
		})).To(Succeed())
	}

	It("rejects an empty query", func() {
		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		_, err := retriever.Retrieve(ctx, "", nil, 5)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("rejects filters naming unregistered documents", func() {
		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		_, err := retriever.Retrieve(ctx, "cpu usage", []string{"ghost"}, 5)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("rejects filters naming inconsistent documents", func() {
		index("awr-jan", "cpu utilization spiked to 95 percent")
		Expect(registry.SetStatus("awr-jan", types.StatusInconsistent)).To(Succeed())

		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		_, err := retriever.Retrieve(ctx, "cpu usage", []string{"awr-jan"}, 5)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("returns ErrNoContext on an empty collection", func() {
		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		_, err := retriever.Retrieve(ctx, "cpu usage", nil, 5)
		Expect(err).To(MatchError(rag.ErrNoContext))
	})

	It("scopes results to the allowed documents", func() {
		index("awr-jan", "cpu utilization spiked during the batch window")
		index("awr-feb", "tablespace growth consumed all remaining storage")

		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		results, err := retriever.Retrieve(ctx, "cpu utilization spiked", []string{"awr-feb"}, 5)
		Expect(err).ToNot(HaveOccurred())
		for _, r := range results {
			Expect(r.DocumentID).To(Equal("awr-feb"))
		}
	})

	It("ranks the chunk sharing terms with the query first", func() {
		index("awr-jan",
			"cpu utilization spiked to 95 percent during the batch window",
			"buffer cache hit ratio stayed above 99 percent all day",
		)
		index("awr-feb", "tablespace growth consumed all remaining storage")

		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		results, err := retriever.Retrieve(ctx, "why did cpu utilization spike during the batch window", nil, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).ToNot(BeEmpty())
		Expect(results[0].DocumentID).To(Equal("awr-jan"))
		Expect(results[0].Sequence).To(Equal(0))

		// Results come back ordered by descending similarity.
		for i := 1; i < len(results); i++ {
			Expect(results[i].Similarity).To(BeNumerically("<=", results[i-1].Similarity))
		}
	})

	It("drops results below the similarity floor", func() {
		index("awr-jan", "cpu utilization spiked during the batch window")

		retriever := rag.NewRetriever(store, embedder, registry, 5, 0.99)
		_, err := retriever.Retrieve(ctx, "completely unrelated kitchen recipe", nil, 5)
		Expect(err).To(MatchError(rag.ErrNoContext))
	})

	It("truncates to k results", func() {
		index("awr-jan",
			"cpu report section one",
			"cpu report section two",
			"cpu report section three",
		)

		retriever := rag.NewRetriever(store, embedder, registry, 5, 0)
		results, err := retriever.Retrieve(ctx, "cpu report", nil, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
	})

	It("falls back to the default k for k < 1", func() {
		index("awr-jan", "cpu report section one", "cpu report section two")

		retriever := rag.NewRetriever(store, embedder, registry, 1, 0)
		results, err := retriever.Retrieve(ctx, "cpu report", nil, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
	})
})
