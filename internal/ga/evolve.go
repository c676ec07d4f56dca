package ga

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

// Operators are the GA rates used to form a new generation
type Operators struct {
	TournamentK   int
	CrossoverRate float64
	MutationRate  float64
}

// Evolve forms the next population. The fittest genome (lowest index on ties)
// is copied unchanged into slot 0. The remaining slots are filled in pairs by
// tournament, crossover and mutation; an odd leftover slot keeps the first
// child and drops the second. It returns the new genomes and the elite index.
func Evolve(genomes [][]float64, fitness []float64, ops Operators, rng *rand.Rand) ([][]float64, int, error) {
	if _, err := checkShape(genomes, fitness); err != nil {
		return nil, -1, err
	}

	size := len(genomes)
	next := make([][]float64, size)

	elite := floats.MaxIdx(fitness)
	next[0] = nn.CloneGenome(genomes[elite])

	for i := 1; i < size; i += 2 {
		a, b := SelectParents(fitness, ops.TournamentK, rng)
		c1, c2, _ := Crossover(genomes[a], genomes[b], ops.CrossoverRate, rng)

		Mutate(c1, ops.MutationRate, rng)
		next[i] = c1
		if i+1 < size {
			Mutate(c2, ops.MutationRate, rng)
			next[i+1] = c2
		}
	}

	return next, elite, nil
}
