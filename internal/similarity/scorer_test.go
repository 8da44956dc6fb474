package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScorerRejectsNegativeWeights(t *testing.T) {
	_, err := NewScorer(-0.1, 0.5)
	assert.Error(t, err)
	_, err = NewScorer(0.5, -0.1)
	assert.Error(t, err)
}

func TestNewScorerAcceptsNonUnitSum(t *testing.T) {
	// Weights that do not sum to 1.0 warn but are accepted.
	s, err := NewScorer(0.9, 0.9)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, []string{"a"}))
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, nil))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, []string{"b"}))
}

func TestJaccardDuplicatesCollapse(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard([]string{"a", "a", "a"}, []string{"a"}))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}))
	// Opposed vectors clamp to zero rather than going negative.
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestHybridFallsBackWithoutVectors(t *testing.T) {
	s, err := NewScorer(0.6, 0.4)
	require.NoError(t, err)

	refsA := []string{"PROJ-1", "PROJ-2"}
	refsB := []string{"PROJ-1"}
	jac := Jaccard(refsA, refsB)

	assert.Equal(t, jac, s.Hybrid(refsA, refsB, nil, []float32{1, 0}))
	assert.Equal(t, jac, s.Hybrid(refsA, refsB, []float32{1, 0}, nil))
}

func TestHybridCombinesWeighted(t *testing.T) {
	s, err := NewScorer(0.6, 0.4)
	require.NoError(t, err)

	refsA := []string{"PROJ-1"}
	refsB := []string{"PROJ-1"}
	vec := []float32{1, 0}
	// Identical refs and identical vectors: 0.6*1 + 0.4*1.
	assert.InDelta(t, 1.0, s.Hybrid(refsA, refsB, vec, vec), 1e-9)

	// Identical refs, orthogonal vectors: only the reference term remains.
	assert.InDelta(t, 0.6, s.Hybrid(refsA, refsB, []float32{1, 0}, []float32{0, 1}), 1e-9)
}
