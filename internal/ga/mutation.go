package ga

import (
	"math/rand"

	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

// Mutate replaces each gene with a fresh uniform [-1,1] value with
// probability rate. It works in place and returns how many genes changed.
func Mutate(genome []float64, rate float64, rng *rand.Rand) int {
	if rate <= 0 {
		return 0
	}
	n := 0
	for i := range genome {
		if rng.Float64() < rate {
			genome[i] = nn.RandomGene(rng)
			n++
		}
	}
	return n
}
