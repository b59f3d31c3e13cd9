package chunk_test

import (
	"strings"

	. "github.com/docstack/answerbox/pkg/chunk"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Chunker", func() {
	// Literal construction keeps the character-based counter so the
	// assertions stay deterministic.
	newChunker := func(size, overlap int) *Chunker {
		return &Chunker{Size: size, Overlap: overlap}
	}

	Describe("Split", func() {
		It("should split text into chunks", func() {
			text := "This is a test. This is another sentence. And one more."
			chunks := newChunker(5, 0).Split(text)
			Expect(chunks).ToNot(BeEmpty())
			Expect(len(chunks)).To(BeNumerically(">", 1))
		})

		It("should handle empty text", func() {
			chunks := newChunker(100, 10).Split("")
			Expect(chunks).To(BeEmpty())
		})

		It("should return whitespace-only text as empty", func() {
			chunks := newChunker(100, 10).Split("  \n\n  ")
			Expect(chunks).To(BeEmpty())
		})

		It("should keep text smaller than the budget whole", func() {
			text := "Short text"
			chunks := newChunker(100, 10).Split(text)
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0]).To(Equal(text))
		})

		It("should prefer paragraph boundaries", func() {
			text := "First paragraph about apples.\n\nSecond paragraph about pears.\n\nThird paragraph about plums."
			chunks := newChunker(10, 0).Split(text)
			Expect(chunks).To(HaveLen(3))
			Expect(chunks[0]).To(Equal("First paragraph about apples."))
			Expect(chunks[1]).To(Equal("Second paragraph about pears."))
			Expect(chunks[2]).To(Equal("Third paragraph about plums."))
		})

		It("should carry overlap words between chunks", func() {
			text := "one two three four five six.\n\nseven eight nine ten eleven twelve."
			chunks := newChunker(8, 2).Split(text)
			Expect(len(chunks)).To(BeNumerically(">=", 2))
			lastWords := strings.Fields(chunks[0])
			Expect(chunks[1]).To(ContainSubstring(lastWords[len(lastWords)-1]))
		})

		It("should split oversized paragraphs on words", func() {
			text := strings.Repeat("word ", 200)
			chunks := newChunker(20, 0).Split(text)
			Expect(len(chunks)).To(BeNumerically(">", 1))
			for _, c := range chunks {
				Expect(len(c)).To(BeNumerically("<=", 20*4+4))
			}
		})

		It("should not lose any words", func() {
			text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
			chunks := newChunker(6, 0).Split(text)
			joined := strings.Join(chunks, " ")
			for _, w := range strings.Fields(text) {
				Expect(joined).To(ContainSubstring(w))
			}
		})
	})
})
