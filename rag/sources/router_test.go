package sources_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/docstack/answerbox/rag/sources"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SourceRouter", func() {
	It("should fetch a plain web page as text", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body><p>release notes for version two</p></body></html>"))
		}))
		defer server.Close()

		content, err := SourceRouter(server.URL, &Config{})
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(ContainSubstring("release notes for version two"))
	})

	It("should strip markup from the page", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body><div><b>bold</b> and <i>italic</i></div></body></html>"))
		}))
		defer server.Close()

		content, err := SourceRouter(server.URL, &Config{})
		Expect(err).ToNot(HaveOccurred())
		Expect(content).ToNot(ContainSubstring("<b>"))
		Expect(content).To(ContainSubstring("bold"))
	})

	It("should fail on HTTP error status", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := SourceRouter(server.URL, &Config{})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("status 404"))
	})

	It("should walk a sitemap and collect every page", func() {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body>first page body</body></html>"))
		})
		mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body>second page body</body></html>"))
		})
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + server.URL + `/page1</loc></url>
  <url><loc>` + server.URL + `/page2</loc></url>
</urlset>`))
		})

		content, err := SourceRouter(server.URL+"/sitemap.xml", &Config{})
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(ContainSubstring("first page body"))
		Expect(content).To(ContainSubstring("second page body"))
	})

	It("should fail on git URLs that cannot be cloned", func() {
		_, err := SourceRouter("file:///nonexistent/repo.git", &Config{})
		Expect(err).To(HaveOccurred())
	})
})
