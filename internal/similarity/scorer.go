// Package similarity scores how related two conversations are by combining
// reference-set overlap with optional embedding similarity.
package similarity

import (
	"fmt"
	"log/slog"
	"math"
)

// Scorer combines Jaccard reference overlap and cosine embedding similarity
// into one hybrid score. Weights are expected (not enforced) to sum to 1.0.
type Scorer struct {
	refWeight float64
	embWeight float64
}

// NewScorer validates the weights and returns a scorer. Negative weights are
// a programmer error and fail fast.
func NewScorer(refWeight, embWeight float64) (*Scorer, error) {
	if refWeight < 0 || embWeight < 0 {
		return nil, fmt.Errorf("similarity weights must be non-negative, got ref=%v emb=%v", refWeight, embWeight)
	}
	if sum := refWeight + embWeight; math.Abs(sum-1.0) > 1e-9 {
		slog.Warn("similarity weights do not sum to 1.0", "ref_weight", refWeight, "emb_weight", embWeight)
	}
	return &Scorer{refWeight: refWeight, embWeight: embWeight}, nil
}

// Jaccard returns |a ∩ b| / |a ∪ b| over normalized reference values.
// Returns 0 when either set is empty: absence of signal is not similarity.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}
	inter := 0
	for v := range setA {
		if setB[v] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Cosine returns the cosine similarity of two vectors, clamped to [0, 1].
// Orthogonal or opposed vectors contribute nothing: only positive semantic
// relatedness counts toward grouping.
func Cosine(a, b []float32) float64 {
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
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

// Hybrid combines reference and embedding similarity. When either vector is
// missing the score falls back to reference similarity alone.
func (s *Scorer) Hybrid(refsA, refsB []string, vecA, vecB []float32) float64 {
	refSim := Jaccard(refsA, refsB)
	if len(vecA) == 0 || len(vecB) == 0 {
		return refSim
	}
	return s.refWeight*refSim + s.embWeight*Cosine(vecA, vecB)
}
