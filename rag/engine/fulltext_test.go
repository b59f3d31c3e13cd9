package engine_test

import (
	"os"
	"path/filepath"

	. "github.com/docstack/answerbox/rag/engine"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FullTextIndex", func() {
	var (
		tempDir string
		index   *FullTextIndex
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "fulltext_test_*")
		Expect(err).ToNot(HaveOccurred())

		index, err = NewFullTextIndex(filepath.Join(tempDir, "fulltext.json"))
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	It("should start empty", func() {
		Expect(index.Count()).To(Equal(0))
		Expect(index.Search("anything", 10)).To(BeEmpty())
	})

	It("should find documents containing query terms", func() {
		Expect(index.Store("a", "the quick brown fox")).To(Succeed())
		Expect(index.Store("b", "a lazy dog sleeps")).To(Succeed())

		results := index.Search("quick fox", 10)
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("a"))
		Expect(results[0].FullTextScore).To(BeNumerically("==", 1.0))
	})

	It("should score partial matches proportionally", func() {
		Expect(index.Store("a", "the quick brown fox")).To(Succeed())

		results := index.Search("quick dog", 10)
		Expect(results).To(HaveLen(1))
		Expect(results[0].FullTextScore).To(BeNumerically("~", 0.5, 0.001))
	})

	It("should rank better matches first", func() {
		Expect(index.Store("a", "alpha beta")).To(Succeed())
		Expect(index.Store("b", "alpha beta gamma")).To(Succeed())

		results := index.Search("alpha gamma", 10)
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("b"))
	})

	It("should cap results at maxResults", func() {
		Expect(index.Store("a", "alpha one")).To(Succeed())
		Expect(index.Store("b", "alpha two")).To(Succeed())
		Expect(index.Store("c", "alpha three")).To(Succeed())

		results := index.Search("alpha", 2)
		Expect(results).To(HaveLen(2))
	})

	It("should persist across reloads", func() {
		Expect(index.Store("a", "persisted content")).To(Succeed())

		reloaded, err := NewFullTextIndex(filepath.Join(tempDir, "fulltext.json"))
		Expect(err).ToNot(HaveOccurred())
		Expect(reloaded.Count()).To(Equal(1))
		Expect(reloaded.Search("persisted", 10)).To(HaveLen(1))
	})

	It("should delete documents", func() {
		Expect(index.Store("a", "some content")).To(Succeed())
		Expect(index.Delete("a")).To(Succeed())
		Expect(index.Count()).To(Equal(0))
	})

	It("should reset", func() {
		Expect(index.Store("a", "some content")).To(Succeed())
		Expect(index.Reset()).To(Succeed())
		Expect(index.Count()).To(Equal(0))
	})
})
