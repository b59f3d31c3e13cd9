package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/docstack/answerbox/llm"
	"github.com/docstack/answerbox/rag/types"
	"github.com/mudler/xlog"
)

var (
	// ErrEmptyQuestion is returned when the question is empty or blank.
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrUpstream marks failures of the retrieval or generation backends.
	ErrUpstream = errors.New("upstream failure")
)

// NoteGeneralKnowledge flags answers that could not be grounded in the
// indexed documents.
const NoteGeneralKnowledge = "This answer is from AI general knowledge, not from uploaded documents."

// Searcher is the retrieval side of the knowledge base.
type Searcher interface {
	Search(s string, similarEntries int) ([]types.Result, error)
}

// Generator produces completions.
type Generator interface {
	Generate(ctx context.Context, prompt string, settings llm.Settings) (*llm.Result, error)
}

// Source is one evidence chunk backing an answer.
type Source struct {
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
	Metadata string  `json:"metadata"`
}

// Response is the outcome of answering one question. Sources is empty
// and Note set when no chunk met the similarity threshold.
type Response struct {
	Answer        string   `json:"answer"`
	SourceType    string   `json:"source_type"`
	FromDocuments bool     `json:"from_documents"`
	Sources       []Source `json:"sources"`
	ModelUsed     string   `json:"model_used"`
	Note          string   `json:"note,omitempty"`
}

// Service answers questions over the knowledge base, grounding every
// answer in retrieved chunks or saying explicitly that it could not.
type Service struct {
	searcher  Searcher
	generator Generator
	threshold float32
	topK      int
}

// NewService creates a chat service. Chunks scoring below threshold are
// discarded and at most topK chunks are used as context.
func NewService(searcher Searcher, generator Generator, threshold float32, topK int) *Service {
	return &Service{
		searcher:  searcher,
		generator: generator,
		threshold: threshold,
		topK:      topK,
	}
}

// Answer processes a question. Retrieval happens first; if at least one
// chunk clears the similarity threshold the answer is generated from a
// context-only prompt, otherwise from general knowledge with an explicit
// disclaimer. Backend failures surface as ErrUpstream, never as a
// fabricated answer.
func (s *Service) Answer(ctx context.Context, question string, settings llm.Settings) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	// Fetch more candidates than topK so threshold filtering can still
	// fill the context window.
	candidates, err := s.searcher.Search(question, s.topK*2)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge base search: %v", ErrUpstream, err)
	}

	retained := make([]types.Result, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Similarity >= s.threshold {
			retained = append(retained, candidate)
		}
	}
	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].Similarity > retained[j].Similarity
	})
	if len(retained) > s.topK {
		retained = retained[:s.topK]
	}

	if len(retained) == 0 {
		return s.answerFromKnowledge(ctx, question, settings)
	}
	return s.answerFromDocuments(ctx, question, retained, settings)
}

func (s *Service) answerFromDocuments(ctx context.Context, question string, retained []types.Result, settings llm.Settings) (*Response, error) {
	contextParts := make([]string, 0, len(retained))
	sources := make([]Source, 0, len(retained))
	for i, chunk := range retained {
		contextParts = append(contextParts, fmt.Sprintf("[Section %d]\n%s", i+1, chunk.Content))
		sources = append(sources, Source{
			Content:  chunk.Content,
			Score:    chunk.Similarity,
			Metadata: sourceLabel(chunk.Metadata),
		})
	}

	prompt := buildContextPrompt(question, strings.Join(contextParts, "\n\n"))
	result, err := s.generate(ctx, prompt, settings)
	if err != nil {
		return nil, err
	}

	xlog.Info("Answered from documents", "chunks", len(sources), "model", result.ModelUsed)

	return &Response{
		Answer:        result.Response,
		SourceType:    "documents",
		FromDocuments: true,
		Sources:       sources,
		ModelUsed:     result.ModelUsed,
	}, nil
}

func (s *Service) answerFromKnowledge(ctx context.Context, question string, settings llm.Settings) (*Response, error) {
	result, err := s.generate(ctx, buildNoDocumentsPrompt(question), settings)
	if err != nil {
		return nil, err
	}

	xlog.Info("No chunk met the similarity threshold, answered from general knowledge", "model", result.ModelUsed)

	return &Response{
		Answer:        result.Response,
		SourceType:    "ai_model",
		FromDocuments: false,
		Sources:       []Source{},
		ModelUsed:     result.ModelUsed,
		Note:          NoteGeneralKnowledge,
	}, nil
}

func (s *Service) generate(ctx context.Context, prompt string, settings llm.Settings) (*llm.Result, error) {
	if settings.SystemPrompt == "" {
		settings.SystemPrompt = defaultSystemPrompt
	}
	result, err := s.generator.Generate(ctx, prompt, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: generation: %v", ErrUpstream, err)
	}
	return result, nil
}

// sourceLabel renders the chunk metadata the way sources are reported:
// the originating file and the chunk position within it.
func sourceLabel(metadata map[string]string) string {
	source := metadata["source"]
	if source == "" {
		source = metadata["url"]
	}
	if source == "" {
		source = "document"
	}
	if chunk, ok := metadata["chunk"]; ok {
		return fmt.Sprintf("Source: %s, Chunk: %s", source, chunk)
	}
	return fmt.Sprintf("Source: %s", source)
}
