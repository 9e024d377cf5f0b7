// Package matchup implements the weighted directed-pair sampler: given a
// candidate set of eligible systems and a weighted directed graph over
// pairs, it draws one ordered (a, b) pair by inverse-CDF sampling.
package matchup

import (
	"sort"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/registry"
)

// Weights is the directed weight table: Weights[a][b] is the unnormalized
// mass assigned to drawing the ordered pair (a, b). Weights are read-only
// once constructed; callers build a fresh Weights from configuration.
type Weights map[registry.SystemKey]map[registry.SystemKey]float64

// Rand draws a uniform float64 in [0, 1). Pluggable so tests can supply a
// deterministic source.
type Rand func() float64

type pairWeight struct {
	a, b registry.SystemKey
	w    float64
}

// Sample restricts weights to pairs within candidates, falls back to a
// uniform distribution over ordered distinct pairs when the restriction is
// empty, and draws one pair via inverse-CDF with ascending-SystemKey
// tiebreak. It fails with apperrors.NoEligibleSystems if fewer than two
// candidates are eligible.
func Sample(candidates []registry.SystemKey, weights Weights, draw Rand) (a, b registry.SystemKey, err error) {
	if len(candidates) < 2 {
		return registry.SystemKey{}, registry.SystemKey{}, apperrors.NoEligibleSystems("matchup.Sample")
	}

	inSet := make(map[registry.SystemKey]bool, len(candidates))
	for _, k := range candidates {
		inSet[k] = true
	}

	pairs := restrictPairs(weights, inSet)
	if len(pairs) == 0 {
		pairs = uniformPairs(candidates)
	}

	sortPairsDeterministically(pairs)

	total := 0.0
	for _, p := range pairs {
		total += p.w
	}
	if total <= 0 {
		pairs = uniformPairs(candidates)
		sortPairsDeterministically(pairs)
		total = float64(len(pairs))
		for i := range pairs {
			pairs[i].w = 1
		}
	}

	target := draw() * total
	cumulative := 0.0
	for _, p := range pairs {
		cumulative += p.w
		if target < cumulative {
			return p.a, p.b, nil
		}
	}
	// Floating point edge case: draw() returned exactly 1.0 or cumulative
	// rounding left a residual. Fall back to the last pair.
	last := pairs[len(pairs)-1]
	return last.a, last.b, nil
}

func restrictPairs(weights Weights, inSet map[registry.SystemKey]bool) []pairWeight {
	var pairs []pairWeight
	for a, row := range weights {
		if !inSet[a] {
			continue
		}
		for b, w := range row {
			if a == b || !inSet[b] || w < 0 {
				continue
			}
			pairs = append(pairs, pairWeight{a: a, b: b, w: w})
		}
	}
	return pairs
}

func uniformPairs(candidates []registry.SystemKey) []pairWeight {
	var pairs []pairWeight
	for _, a := range candidates {
		for _, b := range candidates {
			if a == b {
				continue
			}
			pairs = append(pairs, pairWeight{a: a, b: b, w: 1})
		}
	}
	return pairs
}

// sortPairsDeterministically orders pairs by ascending (a, then b), so ties
// in the cumulative-weight draw resolve to the lexicographically smallest
// pair, satisfying the sampler's tiebreak rule.
func sortPairsDeterministically(pairs []pairWeight) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a.Less(pairs[j].a)
		}
		return pairs[i].b.Less(pairs[j].b)
	})
}

// SymmetricWeights sums both directions of a directed weight table into a
// new table, resolving the open question of whether "a/b" and "b/a" should
// be treated as distinct. Callers that configure symmetric weights should
// build their Weights via SymmetricWeights before calling Sample.
func SymmetricWeights(w Weights) Weights {
	out := make(Weights, len(w))
	add := func(a, b registry.SystemKey, v float64) {
		if out[a] == nil {
			out[a] = make(map[registry.SystemKey]float64)
		}
		out[a][b] += v
	}
	for a, row := range w {
		for b, v := range row {
			add(a, b, v)
			add(b, a, v)
		}
	}
	return out
}
