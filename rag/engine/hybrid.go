package engine

import (
	"fmt"
	"path/filepath"

	"github.com/docstack/answerbox/rag/interfaces"
	"github.com/docstack/answerbox/rag/types"
)

// HybridSearchEngine combines semantic and full-text search behind the
// regular Engine interface.
type HybridSearchEngine struct {
	semantic interfaces.Engine
	fulltext *FullTextIndex
	reranker types.Reranker
}

// NewHybridSearchEngine creates a hybrid engine over the given semantic
// engine. The full-text index lives next to the semantic data under dbPath.
func NewHybridSearchEngine(semantic interfaces.Engine, reranker types.Reranker, dbPath string) (*HybridSearchEngine, error) {
	fulltext, err := NewFullTextIndex(filepath.Join(dbPath, "fulltext.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to create full-text index: %w", err)
	}

	return &HybridSearchEngine{
		semantic: semantic,
		fulltext: fulltext,
		reranker: reranker,
	}, nil
}

// Store stores a chunk in both the semantic and full-text indexes.
func (h *HybridSearchEngine) Store(s string, metadata map[string]string) error {
	if err := h.semantic.Store(s, metadata); err != nil {
		return err
	}
	// The chunk content doubles as the full-text key so that results from
	// both indexes can be merged without a shared ID space.
	return h.fulltext.Store(s, s)
}

// StoreDocuments stores a batch of chunks in both indexes.
func (h *HybridSearchEngine) StoreDocuments(s []string, metadata map[string]string) error {
	if err := h.semantic.StoreDocuments(s, metadata); err != nil {
		return err
	}
	for _, content := range s {
		if err := h.fulltext.Store(content, content); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets both indexes.
func (h *HybridSearchEngine) Reset() error {
	if err := h.semantic.Reset(); err != nil {
		return err
	}
	return h.fulltext.Reset()
}

// Count returns the number of chunks in the semantic index.
func (h *HybridSearchEngine) Count() int {
	return h.semantic.Count()
}

// Search merges semantic and full-text matches and hands them to the
// reranker for final ordering.
func (h *HybridSearchEngine) Search(query string, similarEntries int) ([]types.Result, error) {
	semanticResults, err := h.semantic.Search(query, similarEntries)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	fullTextResults := h.fulltext.Search(query, similarEntries)

	merged, err := h.reranker.Rerank(query, mergeByContent(semanticResults, fullTextResults))
	if err != nil {
		return nil, fmt.Errorf("reranking failed: %w", err)
	}

	if len(merged) > similarEntries {
		merged = merged[:similarEntries]
	}
	return merged, nil
}

// mergeByContent joins the two result sets on chunk content, keeping the
// semantic metadata and attaching the full-text score where both matched.
func mergeByContent(semanticResults, fullTextResults []types.Result) []types.Result {
	byContent := make(map[string]types.Result, len(semanticResults))
	for _, r := range semanticResults {
		byContent[r.Content] = r
	}
	for _, r := range fullTextResults {
		if match, ok := byContent[r.Content]; ok {
			match.FullTextScore = r.FullTextScore
			byContent[r.Content] = match
		} else {
			byContent[r.Content] = r
		}
	}

	merged := make([]types.Result, 0, len(byContent))
	for _, r := range byContent {
		merged = append(merged, r)
	}
	return merged
}
