package interfaces

import "github.com/docstack/answerbox/rag/types"

// Engine defines the interface for chunk indexes.
type Engine interface {
	Store(s string, meta map[string]string) error
	StoreDocuments(s []string, meta map[string]string) error
	Reset() error
	Search(s string, similarEntries int) ([]types.Result, error)
	Count() int
}
