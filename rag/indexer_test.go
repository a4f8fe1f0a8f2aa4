package rag_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reportlens/reportlens/rag"
	"github.com/reportlens/reportlens/rag/engine"
	"github.com/reportlens/reportlens/rag/types"
)

var _ = Describe("Indexer", func() {
	var (
		store    *engine.ChromemDB
		registry *rag.Registry
		indexer  *rag.Indexer
		srcDir   string
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		srcDir = GinkgoT().TempDir()

		var err error
		store, err = engine.NewChromemDBCollection("reports", GinkgoT().TempDir())
		Expect(err).ToNot(HaveOccurred())

		registry, err = rag.OpenRegistry(filepath.Join(GinkgoT().TempDir(), "registry.db"))
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(registry.Close)

		chunker, err := rag.NewChunker(50, 10)
		Expect(err).ToNot(HaveOccurred())

		indexer, err = rag.NewIndexer(store, registry, hashEmbedder{dims: 128}, chunker, filepath.Join(GinkgoT().TempDir(), "assets"))
		Expect(err).ToNot(HaveOccurred())
	})

	writeSource := func(name, content string) string {
		path := filepath.Join(srcDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("indexes a document end to end", func() {
		path := writeSource("report.txt", "cpu utilization spiked to 95 percent during the nightly batch window while db time tripled")

		rec, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.ID).To(Equal("awr-jan"))
		Expect(rec.DisplayName).To(Equal("January AWR"))
		Expect(rec.SourceFormat).To(Equal("txt"))
		Expect(rec.ChunkCount).To(BeNumerically(">", 1))
		Expect(rec.Status).To(Equal(types.StatusIndexed))

		Expect(store.Count()).To(Equal(rec.ChunkCount))
		Expect(registry.Queryable("awr-jan")).To(BeTrue())
	})

	It("rejects an empty document identifier", func() {
		path := writeSource("report.txt", "content")
		_, err := indexer.Index(ctx, "", "name", path)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("rejects a missing source file", func() {
		_, err := indexer.Index(ctx, "awr-jan", "name", filepath.Join(srcDir, "absent.txt"))
		Expect(err).To(MatchError(rag.ErrUnreadableDocument))
	})

	It("rejects an empty document", func() {
		path := writeSource("empty.txt", "")
		_, err := indexer.Index(ctx, "awr-jan", "name", path)
		Expect(err).To(MatchError(rag.ErrUnreadableDocument))
	})

	It("rejects an unsupported source format", func() {
		path := writeSource("report.xyz", "content")
		_, err := indexer.Index(ctx, "awr-jan", "name", path)
		Expect(err).To(MatchError(rag.ErrUnreadableDocument))
	})

	It("reindexes from the stored source with identical results", func() {
		path := writeSource("report.txt", "cpu utilization spiked to 95 percent during the nightly batch window")

		first, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())

		// The original upload can disappear; reindex works from the stored copy.
		Expect(os.Remove(path)).To(Succeed())

		second, err := indexer.Reindex(ctx, "awr-jan")
		Expect(err).ToNot(HaveOccurred())
		Expect(second.ChunkCount).To(Equal(first.ChunkCount))
		Expect(store.Count()).To(Equal(first.ChunkCount))
		Expect(registry.Queryable("awr-jan")).To(BeTrue())
	})

	It("fails to reindex an unknown document", func() {
		_, err := indexer.Reindex(ctx, "ghost")
		Expect(err).To(MatchError(rag.ErrNotFound))
	})

	It("removes a document from both the registry and the store", func() {
		path := writeSource("report.txt", "cpu utilization spiked during the batch window")

		_, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())

		Expect(indexer.Remove(ctx, "awr-jan")).To(Succeed())
		Expect(registry.Exists("awr-jan")).To(BeFalse())
		Expect(store.Count()).To(Equal(0))
	})

	It("fails to remove an unknown document", func() {
		Expect(indexer.Remove(ctx, "ghost")).To(MatchError(rag.ErrNotFound))
	})

	It("marks documents whose entries drifted as inconsistent", func() {
		path := writeSource("report.txt", "cpu utilization spiked during the batch window")

		_, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())

		// Simulate a crash that lost the stored entries but kept the registry
		// record.
		Expect(store.Delete(ctx, "awr-jan")).To(Succeed())

		stats, drifted, err := indexer.Verify(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(drifted).To(ConsistOf("awr-jan"))
		Expect(stats.EntriesPerDoc).ToNot(HaveKey("awr-jan"))
		Expect(registry.Queryable("awr-jan")).To(BeFalse())

		rec, err := registry.Get("awr-jan")
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Status).To(Equal(types.StatusInconsistent))
	})

	It("reports no drift for a consistent store", func() {
		path := writeSource("report.txt", "cpu utilization spiked during the batch window")

		_, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())

		stats, drifted, err := indexer.Verify(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(drifted).To(BeEmpty())
		Expect(stats.EntriesPerDoc).To(HaveKey("awr-jan"))
		Expect(registry.Queryable("awr-jan")).To(BeTrue())
	})

	It("restores queryability after reindexing a drifted document", func() {
		path := writeSource("report.txt", "cpu utilization spiked during the batch window")

		_, err := indexer.Index(ctx, "awr-jan", "January AWR", path)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.Delete(ctx, "awr-jan")).To(Succeed())

		_, _, err = indexer.Verify(ctx)
		Expect(err).ToNot(HaveOccurred())

		_, err = indexer.Reindex(ctx, "awr-jan")
		Expect(err).ToNot(HaveOccurred())
		Expect(registry.Queryable("awr-jan")).To(BeTrue())
	})
})
