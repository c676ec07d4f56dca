package ga

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// TournamentSelect runs a k-way tournament with replacement and returns the
// winning index. The first contestant with the highest fitness wins.
// When k covers the whole population every index is examined, so the global
// best is returned.
func TournamentSelect(fitness []float64, k int, rng *rand.Rand) int {
	n := len(fitness)
	if n == 0 {
		return -1
	}
	if k >= n {
		return floats.MaxIdx(fitness)
	}
	if k < 1 {
		k = 1
	}

	best := rng.Intn(n)
	for i := 1; i < k; i++ {
		candidate := rng.Intn(n)
		if fitness[candidate] > fitness[best] {
			best = candidate
		}
	}
	return best
}

// SelectParents draws two parents by independent tournaments
func SelectParents(fitness []float64, k int, rng *rand.Rand) (int, int) {
	p1 := TournamentSelect(fitness, k, rng)
	p2 := TournamentSelect(fitness, k, rng)
	return p1, p2
}
