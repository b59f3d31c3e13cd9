package types

import "sort"

// Reranker reorders search results after semantic and full-text scores
// have been collected.
type Reranker interface {
	Rerank(query string, results []Result) ([]Result, error)
}

// WeightedReranker combines semantic and full-text scores with fixed
// weights and sorts the results best-first.
type WeightedReranker struct {
	SemanticWeight float32
	FullTextWeight float32
}

// NewWeightedReranker creates a reranker with the given weights. Weights
// that sum to zero fall back to an even split.
func NewWeightedReranker(semanticWeight, fullTextWeight float32) *WeightedReranker {
	if semanticWeight+fullTextWeight == 0 {
		semanticWeight, fullTextWeight = 0.5, 0.5
	}
	return &WeightedReranker{
		SemanticWeight: semanticWeight,
		FullTextWeight: fullTextWeight,
	}
}

func (r *WeightedReranker) Rerank(query string, results []Result) ([]Result, error) {
	reranked := make([]Result, len(results))
	copy(reranked, results)

	for i := range reranked {
		reranked[i].CombinedScore = reranked[i].Similarity*r.SemanticWeight +
			reranked[i].FullTextScore*r.FullTextWeight
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].CombinedScore > reranked[j].CombinedScore
	})

	return reranked, nil
}
