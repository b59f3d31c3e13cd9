package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
)

// Config is the process configuration, read once at startup.
type Config struct {
	ListenAddress string

	OpenAIKey     string
	OpenAIBaseURL string

	DefaultModel   string
	FallbackModel  string
	EmbeddingModel string

	SimilarityThreshold float32
	TopKResults         int

	ChunkSize    int
	ChunkOverlap int

	SemanticWeight float32
	FullTextWeight float32

	CollectionDBPath string
	FileAssets       string

	DatabaseURL string
	AdminToken  string

	GitPrivateKey string
}

// loadConfig reads the environment, after loading a .env file when one
// is present.
func loadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		xlog.Info("Loaded configuration from .env")
	}

	return &Config{
		ListenAddress: getEnv("LISTEN_ADDRESS", ":8080"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		DefaultModel:   getEnv("DEFAULT_MODEL", "llama3.2:1b"),
		FallbackModel:  os.Getenv("FALLBACK_MODEL"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),

		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.25),
		TopKResults:         getEnvInt("TOP_K_RESULTS", 3),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		SemanticWeight: getEnvFloat("SEMANTIC_WEIGHT", 0.7),
		FullTextWeight: getEnvFloat("FULLTEXT_WEIGHT", 0.3),

		CollectionDBPath: getEnv("COLLECTION_DB_PATH", "data/index"),
		FileAssets:       getEnv("FILE_ASSETS", "data/assets"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),

		GitPrivateKey: os.Getenv("GIT_PRIVATE_KEY"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		xlog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float32) float32 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		xlog.Warn("Invalid float in environment, using default", "key", key, "value", value)
		return fallback
	}
	return float32(parsed)
}
