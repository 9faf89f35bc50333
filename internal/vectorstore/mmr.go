package vectorstore

import (
	"math"
	"sort"

	"contractaid/internal/document"
)

// candidate is one entry of the nearest-neighbour pool.
type candidate struct {
	segment   document.Segment
	vector    []float32
	relevance float64
}

// cosine returns the cosine similarity of a and b, 0 when either is zero.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// nearest scores every candidate against query and keeps the fetchK most
// relevant, ordered by descending relevance with ties kept in input order.
func nearest(query []float32, pool []candidate, fetchK int) []candidate {
	for i := range pool {
		pool[i].relevance = cosine(query, pool[i].vector)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].relevance > pool[j].relevance
	})
	if len(pool) > fetchK {
		pool = pool[:fetchK]
	}
	return pool
}

// selectMMR runs maximal marginal relevance over pool, which must already
// carry relevance scores. The most relevant candidate is taken first; each
// following pick maximises
//
//	lambda*relevance - (1-lambda)*max similarity to the picks so far
//
// until k picks are made or the pool is exhausted. It returns pool indices
// in selection order.
func selectMMR(pool []candidate, k int, lambda float64) []int {
	if k > len(pool) {
		k = len(pool)
	}
	if k <= 0 {
		return nil
	}

	selected := make([]int, 0, k)
	taken := make([]bool, len(pool))
	// maxSim[i] is the highest similarity between candidate i and any pick.
	maxSim := make([]float64, len(pool))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	first := 0
	for i := range pool {
		if pool[i].relevance > pool[first].relevance {
			first = i
		}
	}

	pick := first
	for {
		selected = append(selected, pick)
		taken[pick] = true
		if len(selected) == k {
			break
		}

		for i := range pool {
			if taken[i] {
				continue
			}
			if sim := cosine(pool[i].vector, pool[pick].vector); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}

		best, bestScore := -1, math.Inf(-1)
		for i := range pool {
			if taken[i] {
				continue
			}
			score := lambda*pool[i].relevance - (1-lambda)*maxSim[i]
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		pick = best
	}

	return selected
}

// rankMMR is the common search path for backends that hold vectors locally.
func rankMMR(query []float32, pool []candidate, params SearchParams) []document.Segment {
	params = params.normalize()
	pool = nearest(query, pool, params.FetchK)
	picks := selectMMR(pool, params.K, params.Lambda)

	out := make([]document.Segment, 0, len(picks))
	seen := make(map[string]struct{}, len(picks))
	for _, i := range picks {
		key := pool[i].segment.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pool[i].segment)
	}
	return out
}
