package matchup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/registry"
)

func key(system, variant string) registry.SystemKey {
	return registry.SystemKey{SystemTag: system, VariantTag: variant}
}

func TestSample_TooFewCandidates(t *testing.T) {
	_, _, err := Sample([]registry.SystemKey{key("noise", "quiet")}, nil, func() float64 { return 0 })
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNoEligibleSystems, appErr.Code)
}

func TestSample_WeightedDraw(t *testing.T) {
	a, b := key("noise", "quiet"), key("noise", "loud")
	candidates := []registry.SystemKey{a, b}
	weights := Weights{a: {b: 1.0}}

	ra, rb, err := Sample(candidates, weights, func() float64 { return 0.5 })
	require.NoError(t, err)
	assert.Equal(t, a, ra)
	assert.Equal(t, b, rb)
}

func TestSample_FallsBackToUniform(t *testing.T) {
	a, b, c := key("a", "v"), key("b", "v"), key("c", "v")
	candidates := []registry.SystemKey{a, b, c}

	// empty weights table restricted to candidates yields no pairs
	_, _, err := Sample(candidates, Weights{}, func() float64 { return 0 })
	require.NoError(t, err)
}

func TestSample_RestrictsToCandidates(t *testing.T) {
	a, b, c := key("a", "v"), key("b", "v"), key("c", "v")
	// weight table includes a pair (a,c) where c is not in the candidate set
	weights := Weights{
		a: {b: 1.0, c: 100.0},
	}
	candidates := []registry.SystemKey{a, b}

	ra, rb, err := Sample(candidates, weights, func() float64 { return 0.99 })
	require.NoError(t, err)
	assert.Equal(t, a, ra)
	assert.Equal(t, b, rb)
}

func TestSample_TiebreakAscendingKey(t *testing.T) {
	a, b := key("a", "v"), key("b", "v")
	candidates := []registry.SystemKey{a, b}
	weights := Weights{
		a: {b: 1.0},
		b: {a: 1.0},
	}
	// draw() == 0 always lands on the first pair in sorted order, which is
	// (a,b) since "a" < "b".
	ra, rb, err := Sample(candidates, weights, func() float64 { return 0 })
	require.NoError(t, err)
	assert.Equal(t, a, ra)
	assert.Equal(t, b, rb)
}

func TestSymmetricWeights_SumsBothDirections(t *testing.T) {
	a, b := key("a", "v"), key("b", "v")
	w := Weights{a: {b: 1.0}}
	sym := SymmetricWeights(w)
	assert.Equal(t, 1.0, sym[a][b])
	assert.Equal(t, 1.0, sym[b][a])
}

func TestSample_NegativeWeightIgnored(t *testing.T) {
	a, b, c := key("a", "v"), key("b", "v"), key("c", "v")
	candidates := []registry.SystemKey{a, b, c}
	weights := Weights{a: {b: -5.0, c: 2.0}}

	ra, rb, err := Sample(candidates, weights, func() float64 { return 0.99 })
	require.NoError(t, err)
	assert.Equal(t, a, ra)
	assert.Equal(t, c, rb)
}
