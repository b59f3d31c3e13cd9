package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/docstack/answerbox/rag/types"
)

// FullTextIndex is a small keyword index persisted as JSON. It complements
// the semantic engine for queries that hinge on exact terms.
type FullTextIndex struct {
	mu   sync.RWMutex
	path string
	docs map[string]string
}

// NewFullTextIndex loads the index at path, creating an empty one if the
// file does not exist yet.
func NewFullTextIndex(path string) (*FullTextIndex, error) {
	idx := &FullTextIndex{path: path, docs: map[string]string{}}
	if err := idx.load(); err != nil {
		return nil, fmt.Errorf("failed to load full-text index: %w", err)
	}
	return idx, nil
}

// Store adds a document to the index.
func (f *FullTextIndex) Store(id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs[id] = content
	return f.save()
}

// Delete removes a document from the index.
func (f *FullTextIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.docs, id)
	return f.save()
}

// Reset clears the index.
func (f *FullTextIndex) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs = map[string]string{}
	return f.save()
}

// Count returns the number of indexed documents.
func (f *FullTextIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.docs)
}

// Search scores every document by the fraction of query terms it contains
// and returns the top maxResults matches.
func (f *FullTextIndex) Search(query string, maxResults int) []types.Result {
	f.mu.RLock()
	defer f.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))

	matches := []types.Result{}
	for id, content := range f.docs {
		if score := termScore(terms, content); score > 0 {
			matches = append(matches, types.Result{
				ID:            id,
				Content:       content,
				FullTextScore: score,
			})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].FullTextScore > matches[b].FullTextScore
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// termScore is the fraction of terms that appear in content.
func termScore(terms []string, content string) float32 {
	if len(terms) == 0 {
		return 0
	}

	lowered := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}

func (f *FullTextIndex) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &f.docs)
}

func (f *FullTextIndex) save() error {
	data, err := json.Marshal(f.docs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0644)
}
