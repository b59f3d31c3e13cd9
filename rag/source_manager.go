package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docstack/answerbox/rag/sources"
	"github.com/mudler/xlog"
)

// SourceManager refreshes the knowledge base's external sources in the
// background.
type SourceManager struct {
	mu     sync.RWMutex
	kb     *KnowledgeBase
	config *sources.Config
}

// NewSourceManager creates a source manager for the given knowledge
// base. Registered sources are refreshed once at startup.
func NewSourceManager(kb *KnowledgeBase, config *sources.Config) *SourceManager {
	sm := &SourceManager{kb: kb, config: config}
	for _, source := range kb.GetExternalSources() {
		go sm.refreshSource(source)
	}
	return sm
}

// AddSource registers a new external source and triggers an immediate
// fetch.
func (sm *SourceManager) AddSource(url string, updateInterval time.Duration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	source := ExternalSource{
		URL:            url,
		UpdateInterval: updateInterval,
		LastUpdate:     time.Now(),
	}
	if err := sm.kb.AddExternalSource(source); err != nil {
		return err
	}

	go sm.refreshSource(source)
	return nil
}

// RemoveSource unregisters an external source and drops its content
// from the index.
func (sm *SourceManager) RemoveSource(url string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.kb.RemoveExternalSource(url); err != nil {
		return err
	}

	if entry := sourceEntryName(url); sm.kb.EntryExists(entry) {
		return sm.kb.RemoveEntry(entry)
	}
	return nil
}

// Start runs the background refresh loop.
func (sm *SourceManager) Start() {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			for _, source := range sm.kb.GetExternalSources() {
				if time.Since(source.LastUpdate) >= source.UpdateInterval {
					go sm.refreshSource(source)
				}
			}
		}
	}()
}

// refreshSource fetches a single source and stores its content under
// the entry name derived from its URL.
func (sm *SourceManager) refreshSource(source ExternalSource) {
	xlog.Info("Refreshing source", "url", source.URL)

	content, err := sources.SourceRouter(source.URL, sm.config)
	if err != nil {
		xlog.Error("Failed to fetch source", "url", source.URL, "error", err)
		return
	}

	// StoreOrReplace works on files, so spool the content to a
	// temporary one named after the source.
	tmpFile := filepath.Join(os.TempDir(), sourceEntryName(source.URL))
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		xlog.Error("Failed to spool source content", "url", source.URL, "error", err)
		return
	}
	defer os.Remove(tmpFile)

	metadata := map[string]string{"url": source.URL, "type": "source"}
	if err := sm.kb.StoreOrReplace(tmpFile, metadata); err != nil {
		xlog.Error("Failed to index source content", "url", source.URL, "error", err)
		return
	}

	xlog.Info("Source refreshed", "url", source.URL)
}

// sourceEntryName converts a URL into the file name its content is
// stored under.
func sourceEntryName(url string) string {
	return fmt.Sprintf("source-%s.txt", sanitizeURL(url))
}

// sanitizeURL converts a URL into a filesystem-safe string.
func sanitizeURL(url string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(url))

	for strings.Contains(mapped, "--") {
		mapped = strings.ReplaceAll(mapped, "--", "-")
	}
	mapped = strings.Trim(mapped, "-")

	// Common filesystem limit
	if len(mapped) > 200 {
		mapped = mapped[:200]
	}
	return mapped
}
