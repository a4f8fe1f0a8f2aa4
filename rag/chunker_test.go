package rag_test

import (
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reportlens/reportlens/rag"
)

var _ = Describe("Chunker", func() {
	It("rejects a non-positive max span", func() {
		_, err := rag.NewChunker(0, 0)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("rejects overlap outside [0, maxSpan)", func() {
		_, err := rag.NewChunker(10, 10)
		Expect(err).To(MatchError(rag.ErrInvalidInput))

		_, err = rag.NewChunker(10, -1)
		Expect(err).To(MatchError(rag.ErrInvalidInput))
	})

	It("returns no chunks for empty text", func() {
		chunker, err := rag.NewChunker(10, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(chunker.Chunk("doc", "")).To(BeEmpty())
	})

	It("returns a single chunk for text shorter than the max span", func() {
		chunker, err := rag.NewChunker(100, 20)
		Expect(err).ToNot(HaveOccurred())

		chunks := chunker.Chunk("doc", "short report")
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Text).To(Equal("short report"))
		Expect(chunks[0].Sequence).To(Equal(0))
		Expect(chunks[0].Start).To(Equal(0))
		Expect(chunks[0].End).To(Equal(12))
	})

	It("advances by maxSpan minus overlap and keeps the overlap text", func() {
		chunker, err := rag.NewChunker(10, 3)
		Expect(err).ToNot(HaveOccurred())

		text := "abcdefghijklmnopqrstuvwx" // 24 characters
		chunks := chunker.Chunk("doc", text)

		Expect(chunks).To(HaveLen(3))
		Expect(chunks[0].Text).To(Equal("abcdefghij"))
		Expect(chunks[1].Text).To(Equal("hijklmnopq"))
		Expect(chunks[2].Text).To(Equal("opqrstuvwx"))

		for i, c := range chunks {
			Expect(c.Sequence).To(Equal(i))
			Expect(c.DocumentID).To(Equal("doc"))
		}

		// Adjacent chunks share exactly the overlap.
		Expect(chunks[0].Text[7:]).To(Equal(chunks[1].Text[:3]))
		Expect(chunks[1].Text[7:]).To(Equal(chunks[2].Text[:3]))
	})

	It("lets the final chunk be shorter than the max span", func() {
		chunker, err := rag.NewChunker(10, 0)
		Expect(err).ToNot(HaveOccurred())

		chunks := chunker.Chunk("doc", strings.Repeat("x", 25))
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[2].Text).To(HaveLen(5))
		Expect(chunks[2].End).To(Equal(25))
	})

	It("never splits a multi-byte character at a span edge", func() {
		chunker, err := rag.NewChunker(10, 2)
		Expect(err).ToNot(HaveOccurred())

		text := "キャッシュヒット率は95パーセントでした待機イベントが支配的"
		chunks := chunker.Chunk("doc", text)
		Expect(len(chunks)).To(BeNumerically(">", 1))

		runes := []rune(text)
		for _, c := range chunks {
			Expect(utf8.ValidString(c.Text)).To(BeTrue())
			Expect(c.Text).To(Equal(string(runes[c.Start:c.End])))
		}
		Expect(chunks[len(chunks)-1].End).To(Equal(len(runes)))
	})

	It("produces identical boundaries for identical input", func() {
		chunker, err := rag.NewChunker(50, 10)
		Expect(err).ToNot(HaveOccurred())

		text := strings.Repeat("cpu utilization spiked during the batch window ", 20)
		Expect(chunker.Chunk("doc", text)).To(Equal(chunker.Chunk("doc", text)))
	})
})
