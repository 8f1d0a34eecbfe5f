package vectordb

import (
	"math"
	"sort"
)

// SortMatches orders matches by descending score, breaking ties by ascending id.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}

func truncate(matches []Match, topK int) []Match {
	if topK > 0 && len(matches) > topK {
		return matches[:topK]
	}
	return matches
}

func resolveTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	return topK
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return append([]float32(nil), v...)
}
