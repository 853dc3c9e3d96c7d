package embed

import "math"

// CosineSimilarity returns the cosine of the angle between two vectors,
// in [-1, 1]. Mismatched or zero-length vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarityScores computes the cosine similarity of a query vector
// against every row of a matrix.
func SimilarityScores(query []float32, matrix [][]float32) []float64 {
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = CosineSimilarity(query, row)
	}
	return scores
}
