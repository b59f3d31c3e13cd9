package rag

import (
	"path/filepath"

	"github.com/docstack/answerbox/pkg/chunk"
	"github.com/docstack/answerbox/rag/engine"
	"github.com/docstack/answerbox/rag/types"
	"github.com/sashabaranov/go-openai"
)

const stateFileName = "knowledgebase.json"

// NewChromemKnowledgeBase builds a knowledge base on top of a persistent
// chromem-go collection combined with the full-text index through the
// hybrid engine.
func NewChromemKnowledgeBase(llmClient *openai.Client, name, dbPath, assetDir, embeddingModel string, chunker *chunk.Chunker, semanticWeight, fullTextWeight float32) (*KnowledgeBase, error) {
	chromemDB, err := engine.NewChromemDBCollection(name, dbPath, llmClient, embeddingModel)
	if err != nil {
		return nil, err
	}

	reranker := types.NewWeightedReranker(semanticWeight, fullTextWeight)
	hybridEngine, err := engine.NewHybridSearchEngine(chromemDB, reranker, dbPath)
	if err != nil {
		return nil, err
	}

	return NewKnowledgeBase(filepath.Join(dbPath, stateFileName), assetDir, hybridEngine, chunker)
}
