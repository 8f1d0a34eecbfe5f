package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// fileStore is a memoryStore that snapshots itself to a JSON file after every upsert.
type fileStore struct {
	*memoryStore
	path string
}

func newFileStore(cfg *Config) (*fileStore, error) {
	storePath := filepath.Clean(cfg.Path)
	dir := filepath.Dir(storePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("filesystem: ensure directory %q: %w", dir, err)
	}
	fs := &fileStore{
		memoryStore: newMemoryStore(cfg),
		path:        storePath,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *fileStore) Upsert(_ context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertLocked(namespace, records); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filesystem: read %q: %w", s.path, err)
	}
	var payload fileStorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("filesystem: decode %q: %w", s.path, err)
	}
	if payload.Dimension > 0 && s.dimension != payload.Dimension {
		return fmt.Errorf(
			"filesystem: stored dimension %d does not match config %d for %q",
			payload.Dimension,
			s.dimension,
			s.path,
		)
	}
	for ns, records := range payload.Namespaces {
		bucket := make(map[string]Record, len(records))
		for i := range records {
			rec := records[i]
			bucket[rec.ID] = Record{
				ID:        rec.ID,
				Text:      rec.Text,
				Embedding: toFloat32(rec.Embedding),
				Metadata:  rec.Metadata,
			}
		}
		s.namespaces[ns] = bucket
	}
	return nil
}

func (s *fileStore) persistLocked() error {
	payload := fileStorePayload{
		Dimension:  s.dimension,
		Namespaces: make(map[string][]fileStoreRecord, len(s.namespaces)),
	}
	for ns, bucket := range s.namespaces {
		records := make([]fileStoreRecord, 0, len(bucket))
		for _, rec := range bucket {
			records = append(records, fileStoreRecord{
				ID:        rec.ID,
				Text:      rec.Text,
				Embedding: toFloat64(rec.Embedding),
				Metadata:  rec.Metadata,
			})
		}
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
		payload.Namespaces[ns] = records
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("filesystem: encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("filesystem: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filesystem: commit snapshot: %w", err)
	}
	return nil
}

type fileStorePayload struct {
	Dimension  int                          `json:"dimension"`
	Namespaces map[string][]fileStoreRecord `json:"namespaces"`
}

type fileStoreRecord struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

func toFloat64(values []float32) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i := range values {
		out[i] = float64(values[i])
	}
	return out
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i := range values {
		out[i] = float32(values[i])
	}
	return out
}
