package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

// memoryStore keeps records in process, partitioned by namespace.
type memoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]Record
}

func newMemoryStore(cfg *Config) *memoryStore {
	return &memoryStore{
		dimension:  cfg.Dimension,
		namespaces: make(map[string]map[string]Record),
	}
}

func (s *memoryStore) Upsert(_ context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(namespace, records)
}

func (s *memoryStore) upsertLocked(namespace string, records []Record) error {
	for i := range records {
		if err := checkDimension("memory", records[i].ID, len(records[i].Embedding), s.dimension); err != nil {
			return err
		}
	}
	bucket, ok := s.namespaces[namespace]
	if !ok {
		bucket = make(map[string]Record, len(records))
		s.namespaces[namespace] = bucket
	}
	for i := range records {
		rec := records[i]
		bucket[rec.ID] = Record{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: cloneVector(rec.Embedding),
			Metadata:  core.CloneMap(rec.Metadata),
		}
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("memory: query dimension mismatch (got %d want %d)", len(query), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.namespaces[opts.Namespace]
	candidates := make([]Match, 0, len(bucket))
	for _, rec := range bucket {
		if !filter.Evaluate(opts.Filter, rec.Metadata) {
			continue
		}
		score := cosineSimilarity(rec.Embedding, query)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		match := Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: core.CloneMap(rec.Metadata),
		}
		if opts.IncludeVectors {
			match.Embedding = cloneVector(rec.Embedding)
		}
		candidates = append(candidates, match)
	}
	SortMatches(candidates)
	return truncate(candidates, resolveTopK(opts.TopK)), nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func (s *memoryStore) count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func checkDimension(backend, id string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: record %q dimension mismatch (got %d want %d)", backend, id, got, want)
	}
	return nil
}
