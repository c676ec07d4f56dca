package ga

import (
	"math/rand"

	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

// SinglePointCrossoverAt swaps the tails of two parents at point.
// child1 = p1[:point] + p2[point:], child2 = p2[:point] + p1[point:].
func SinglePointCrossoverAt(p1, p2 []float64, point int) ([]float64, []float64) {
	size := len(p1)
	point = max(0, min(point, size))

	c1 := make([]float64, size)
	c2 := make([]float64, size)

	copy(c1[:point], p1[:point])
	copy(c1[point:], p2[point:])
	copy(c2[:point], p2[:point])
	copy(c2[point:], p1[point:])

	return c1, c2
}

// Crossover applies single-point crossover with probability rate, the point
// drawn uniformly from [1, L-1]. Otherwise the children are copies of the
// parents. The returned point is 0 when no crossover happened.
func Crossover(p1, p2 []float64, rate float64, rng *rand.Rand) ([]float64, []float64, int) {
	if len(p1) < 2 || rng.Float64() >= rate {
		return nn.CloneGenome(p1), nn.CloneGenome(p2), 0
	}
	point := 1 + rng.Intn(len(p1)-1)
	c1, c2 := SinglePointCrossoverAt(p1, p2, point)
	return c1, c2, point
}
