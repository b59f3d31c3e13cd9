package types

// Result represents a single chunk returned from a query.
type Result struct {
	ID       string
	Metadata map[string]string
	Content  string

	// The cosine similarity between the query and the chunk.
	// The higher the value, the more similar the chunk is to the query.
	// The value is in the range [-1, 1].
	Similarity float32

	// FullTextScore represents the score from full-text search.
	// The higher the value, the more relevant the chunk is to the query.
	FullTextScore float32

	// CombinedScore is the final score after reranking. It orders search
	// results; grounding decisions always use Similarity.
	CombinedScore float32
}
