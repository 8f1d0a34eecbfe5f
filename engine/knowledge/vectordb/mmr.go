package vectordb

import (
	"context"
	"fmt"
	"math"

	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

const defaultFetchK = 20

// MMROptions configures a maximal marginal relevance query.
type MMROptions struct {
	Namespace string
	K         int
	FetchK    int
	// Lambda weighs relevance against diversity: 1 is pure relevance, 0 pure diversity.
	Lambda float64
	Filter filter.Expression
}

// MMRSearch fetches FetchK candidates with their vectors and keeps the K that
// best balance similarity to the query against similarity to each other.
func MMRSearch(ctx context.Context, store Store, query []float32, opts MMROptions) ([]Match, error) {
	k := resolveTopK(opts.K)
	fetchK := opts.FetchK
	if fetchK <= 0 {
		fetchK = defaultFetchK
	}
	if fetchK < k {
		fetchK = k
	}
	if opts.Lambda < 0 || opts.Lambda > 1 {
		return nil, fmt.Errorf("vectordb: mmr lambda %v outside [0,1]", opts.Lambda)
	}
	candidates, err := store.Search(ctx, query, SearchOptions{
		Namespace:      opts.Namespace,
		TopK:           fetchK,
		Filter:         opts.Filter,
		IncludeVectors: true,
	})
	if err != nil {
		return nil, err
	}
	selected := SelectMMR(candidates, k, opts.Lambda)
	for i := range selected {
		selected[i].Embedding = nil
	}
	return selected, nil
}

// SelectMMR greedily picks up to k candidates. Each step takes the candidate
// maximizing lambda*score(c) - (1-lambda)*max(sim(c, s)) over already
// selected s, where score is the relevance the store reported and sim is the
// cosine similarity of the candidate embeddings. Candidates are considered in
// SortMatches order so ties resolve to the higher scored, then lower id,
// candidate.
func SelectMMR(candidates []Match, k int, lambda float64) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	pool := make([]Match, len(candidates))
	copy(pool, candidates)
	SortMatches(pool)
	if k > len(pool) {
		k = len(pool)
	}
	relevance := make([]float64, len(pool))
	for i := range pool {
		relevance[i] = pool[i].Score
	}
	// redundancy[i] tracks the max similarity of pool[i] to anything selected so far.
	redundancy := make([]float64, len(pool))
	taken := make([]bool, len(pool))
	out := make([]Match, 0, k)
	for len(out) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range pool {
			if taken[i] {
				continue
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy[i]
			if len(out) == 0 {
				score = relevance[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		taken[best] = true
		out = append(out, pool[best])
		for i := range pool {
			if taken[i] {
				continue
			}
			sim := cosineSimilarity(pool[i].Embedding, pool[best].Embedding)
			if len(out) == 1 || sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}
	return out
}
