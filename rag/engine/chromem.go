package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/docstack/answerbox/rag/types"
	"github.com/philippgille/chromem-go"
	"github.com/sashabaranov/go-openai"
)

// ChromemDB is a chunk index backed by a persistent chromem-go
// collection. Embeddings come from an OpenAI-compatible endpoint.
type ChromemDB struct {
	db             *chromem.DB
	collection     *chromem.Collection
	name           string
	client         *openai.Client
	embeddingModel string
	nextID         int
}

// NewChromemDBCollection opens (or creates) the named persistent
// collection under path.
func NewChromemDBCollection(name, path string, client *openai.Client, embeddingModel string) (*ChromemDB, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}

	c := &ChromemDB{
		db:             db,
		name:           name,
		client:         client,
		embeddingModel: embeddingModel,
		nextID:         1,
	}

	collection, err := db.GetOrCreateCollection(name, nil, c.embedText)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}
	c.collection = collection
	c.nextID = collection.Count() + 1

	return c, nil
}

// embedText is the chromem embedding hook.
func (c *ChromemDB) embedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings endpoint returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// Store indexes a single chunk with its metadata.
func (c *ChromemDB) Store(s string, metadata map[string]string) error {
	return c.StoreDocuments([]string{s}, metadata)
}

// StoreDocuments indexes a batch of chunks sharing the same metadata.
func (c *ChromemDB) StoreDocuments(s []string, metadata map[string]string) error {
	if len(s) == 0 {
		return fmt.Errorf("no content to store")
	}
	for _, content := range s {
		if content == "" {
			return fmt.Errorf("cannot store an empty chunk")
		}
	}

	documents := make([]chromem.Document, len(s))
	for i, content := range s {
		documents[i] = chromem.Document{
			ID:       fmt.Sprint(c.nextID + i),
			Content:  content,
			Metadata: metadata,
		}
	}

	if err := c.collection.AddDocuments(context.Background(), documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	c.nextID += len(s)
	return nil
}

// Search returns the chunks most similar to s, at most similarEntries
// of them.
func (c *ChromemDB) Search(s string, similarEntries int) ([]types.Result, error) {
	// chromem rejects queries asking for more results than stored.
	if count := c.collection.Count(); similarEntries > count {
		similarEntries = count
	}
	if similarEntries == 0 {
		return []types.Result{}, nil
	}

	matches, err := c.collection.Query(context.Background(), s, similarEntries, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]types.Result, 0, len(matches))
	for _, match := range matches {
		results = append(results, types.Result{
			ID:         match.ID,
			Content:    match.Content,
			Metadata:   match.Metadata,
			Similarity: match.Similarity,
		})
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (c *ChromemDB) Count() int {
	return c.collection.Count()
}

// Reset drops and recreates the collection.
func (c *ChromemDB) Reset() error {
	if err := c.db.DeleteCollection(c.name); err != nil {
		return fmt.Errorf("deleting collection %q: %w", c.name, err)
	}

	collection, err := c.db.GetOrCreateCollection(c.name, nil, c.embedText)
	if err != nil {
		return fmt.Errorf("recreating collection %q: %w", c.name, err)
	}

	c.collection = collection
	c.nextID = 1
	return nil
}
