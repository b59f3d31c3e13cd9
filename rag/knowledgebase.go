package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/docstack/answerbox/pkg/chunk"
	"github.com/docstack/answerbox/rag/extract"
	"github.com/mudler/xlog"
)

// ExternalSource is a URL whose content is periodically re-ingested.
type ExternalSource struct {
	URL            string        `json:"url"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
}

type kbState struct {
	Files   []string         `json:"files"`
	Sources []ExternalSource `json:"sources"`
}

// KnowledgeBase is a persistent document index: uploaded files live in
// assetDir, the list of indexed entries in a JSON state file, and the
// chunk index in the wrapped Engine.
type KnowledgeBase struct {
	Engine
	sync.Mutex
	state    kbState
	path     string
	assetDir string
	chunker  *chunk.Chunker
}

func loadState(path string) (kbState, error) {
	state := kbState{}
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(data, &state)
	return state, err
}

// NewKnowledgeBase opens the knowledge base at stateFile, creating a new
// empty one if no state exists yet.
func NewKnowledgeBase(stateFile, assetDir string, store Engine, chunker *chunk.Chunker) (*KnowledgeBase, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, err
	}

	kb := &KnowledgeBase{
		Engine:   store,
		path:     stateFile,
		assetDir: assetDir,
		chunker:  chunker,
	}

	if _, err := os.Stat(stateFile); err != nil {
		kb.Lock()
		defer kb.Unlock()
		return kb, kb.save()
	}

	state, err := loadState(stateFile)
	if err != nil {
		return nil, err
	}
	kb.state = state

	return kb, nil
}

func (db *KnowledgeBase) save() error {
	data, err := json.Marshal(db.state)
	if err != nil {
		return err
	}

	return os.WriteFile(db.path, data, 0644)
}

// ListDocuments returns the file names currently indexed.
func (db *KnowledgeBase) ListDocuments() []string {
	db.Lock()
	defer db.Unlock()

	files := make([]string, len(db.state.Files))
	copy(files, db.state.Files)
	return files
}

// EntryExists reports whether the given file name is indexed.
func (db *KnowledgeBase) EntryExists(entry string) bool {
	db.Lock()
	defer db.Unlock()

	return db.entryExists(entry)
}

func (db *KnowledgeBase) entryExists(entry string) bool {
	entry = filepath.Base(entry)
	for _, e := range db.state.Files {
		if e == entry {
			return true
		}
	}
	return false
}

// Store copies the file into the asset dir, chunks it and indexes the
// chunks. The metadata map is attached to every chunk in addition to the
// source file name and chunk number.
func (db *KnowledgeBase) Store(entry string, metadata map[string]string) error {
	db.Lock()
	defer db.Unlock()

	if _, err := os.Stat(entry); err != nil {
		return fmt.Errorf("file does not exist: %s", entry)
	}

	fileName := filepath.Base(entry)
	if db.entryExists(fileName) {
		return fmt.Errorf("entry already exists: %s", fileName)
	}

	if err := copyFile(entry, db.assetDir); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := db.index(fileName, metadata); err != nil {
		return fmt.Errorf("failed to index file: %w", err)
	}

	db.state.Files = append(db.state.Files, fileName)
	return db.save()
}

// StoreOrReplace is like Store but replaces the entry if it already
// exists.
func (db *KnowledgeBase) StoreOrReplace(entry string, metadata map[string]string) error {
	if db.EntryExists(entry) {
		if err := db.RemoveEntry(filepath.Base(entry)); err != nil {
			return err
		}
	}
	return db.Store(entry, metadata)
}

// index chunks a file from the asset dir and stores the chunks in the
// engine.
func (db *KnowledgeBase) index(fileName string, metadata map[string]string) error {
	text, err := extract.Text(filepath.Join(db.assetDir, fileName))
	if err != nil {
		return err
	}

	pieces := db.chunker.Split(text)
	xlog.Debug("Indexing file", "file", fileName, "chunks", len(pieces))

	for i, p := range pieces {
		meta := map[string]string{
			"source": fileName,
			"chunk":  strconv.Itoa(i + 1),
			"type":   "file",
		}
		for k, v := range metadata {
			meta[k] = v
		}
		if err := db.Engine.Store(p, meta); err != nil {
			return err
		}
	}

	return nil
}

// RemoveEntry removes a file from the knowledge base. The engine does
// not support deleting individual chunks, so the index is rebuilt from
// the remaining files.
func (db *KnowledgeBase) RemoveEntry(entry string) error {
	db.Lock()
	found := false
	for i, e := range db.state.Files {
		if e == entry {
			db.state.Files = append(db.state.Files[:i], db.state.Files[i+1:]...)
			os.Remove(filepath.Join(db.assetDir, e))
			found = true
			break
		}
	}
	db.save()
	db.Unlock()

	if !found {
		return fmt.Errorf("entry not found: %s", entry)
	}

	return db.Reindex()
}

// Reindex rebuilds the chunk index from the files on disk.
func (db *KnowledgeBase) Reindex() error {
	db.Lock()
	defer db.Unlock()

	if err := db.Engine.Reset(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}

	for _, f := range db.state.Files {
		if err := db.index(f, nil); err != nil {
			return fmt.Errorf("failed to reindex %s: %w", f, err)
		}
	}

	return nil
}

// Reset removes all files and clears the index.
func (db *KnowledgeBase) Reset() error {
	db.Lock()
	for _, f := range db.state.Files {
		os.Remove(filepath.Join(db.assetDir, f))
	}
	db.state.Files = []string{}
	db.save()
	db.Unlock()

	return db.Engine.Reset()
}

// AddExternalSource records an external source in the persistent state.
func (db *KnowledgeBase) AddExternalSource(source ExternalSource) error {
	db.Lock()
	defer db.Unlock()

	for _, s := range db.state.Sources {
		if s.URL == source.URL {
			return fmt.Errorf("source already exists: %s", source.URL)
		}
	}

	db.state.Sources = append(db.state.Sources, source)
	return db.save()
}

// RemoveExternalSource removes an external source from the persistent
// state.
func (db *KnowledgeBase) RemoveExternalSource(url string) error {
	db.Lock()
	defer db.Unlock()

	for i, s := range db.state.Sources {
		if s.URL == url {
			db.state.Sources = append(db.state.Sources[:i], db.state.Sources[i+1:]...)
			return db.save()
		}
	}

	return fmt.Errorf("source not found: %s", url)
}

// GetExternalSources returns the registered external sources.
func (db *KnowledgeBase) GetExternalSources() []ExternalSource {
	db.Lock()
	defer db.Unlock()

	sources := make([]ExternalSource, len(db.state.Sources))
	copy(sources, db.state.Sources)
	return sources
}

// Stats summarizes the knowledge base contents.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
}

// GetStats returns document and chunk counts.
func (db *KnowledgeBase) GetStats() Stats {
	db.Lock()
	defer db.Unlock()

	return Stats{
		TotalDocuments: len(db.state.Files),
		TotalChunks:    db.Engine.Count(),
	}
}

func copyFile(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, filepath.Base(src)), in, 0644)
}
