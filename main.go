package main

import (
	"context"
	"os"

	"github.com/docstack/answerbox/chat"
	"github.com/docstack/answerbox/llm"
	"github.com/docstack/answerbox/pkg/chunk"
	"github.com/docstack/answerbox/rag"
	"github.com/docstack/answerbox/rag/sources"
	"github.com/docstack/answerbox/store"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const collectionName = "documents"

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		xlog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		xlog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Setup(ctx, cfg.DefaultModel); err != nil {
		xlog.Error("Failed to set up database", "error", err)
		os.Exit(1)
	}

	openAIConfig := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		openAIConfig.BaseURL = cfg.OpenAIBaseURL
	}
	openAIClient := openai.NewClientWithConfig(openAIConfig)

	chunker := chunk.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)

	kb, err := rag.NewChromemKnowledgeBase(
		openAIClient,
		collectionName,
		cfg.CollectionDBPath,
		cfg.FileAssets,
		cfg.EmbeddingModel,
		chunker,
		cfg.SemanticWeight,
		cfg.FullTextWeight,
	)
	if err != nil {
		xlog.Error("Failed to open knowledge base", "error", err)
		os.Exit(1)
	}

	sourceManager := rag.NewSourceManager(kb, &sources.Config{GitPrivateKey: cfg.GitPrivateKey})
	sourceManager.Start()

	llmClient := llm.NewClient(openAIClient)

	app := &application{
		config:    cfg,
		store:     db,
		kb:        kb,
		sources:   sourceManager,
		chat:      chat.NewService(kb, llmClient, cfg.SimilarityThreshold, cfg.TopKResults),
		llm:       llmClient,
		rateStore: memory.NewStore(),
	}

	xlog.Info("Starting server", "address", cfg.ListenAddress)
	if err := startAPI(app); err != nil {
		xlog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
