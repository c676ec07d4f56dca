package ga

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

// ErrLengthMismatch reports a population, fitness vector or genome whose
// length disagrees with the running configuration.
var ErrLengthMismatch = errors.New("ga: length mismatch")

// Population holds P genomes and their index-aligned fitness.
// Index i is agent slot i for the whole generation.
type Population struct {
	Genomes [][]float64
	Fitness []float64
}

// NewPopulation creates a random population with genes uniform in [-1,1]
func NewPopulation(size, genomeLength int, rng *rand.Rand) *Population {
	p := &Population{
		Genomes: make([][]float64, size),
		Fitness: make([]float64, size),
	}
	for i := range p.Genomes {
		p.Genomes[i] = nn.RandomGenome(genomeLength, rng)
	}
	return p
}

// FromGenomes builds a population from copies of genomes after checking their shape
func FromGenomes(genomes [][]float64, genomeLength int) (*Population, error) {
	p := &Population{
		Genomes: make([][]float64, len(genomes)),
		Fitness: make([]float64, len(genomes)),
	}
	for i, g := range genomes {
		if len(g) != genomeLength {
			return nil, fmt.Errorf("%w: genome %d has %d genes, want %d", ErrLengthMismatch, i, len(g), genomeLength)
		}
		p.Genomes[i] = nn.CloneGenome(g)
	}
	return p, nil
}

// Size returns the population size
func (p *Population) Size() int {
	return len(p.Genomes)
}

// ResetFitness zeroes the fitness vector
func (p *Population) ResetFitness() {
	clear(p.Fitness)
}

// Best returns the index and fitness of the fittest genome. Ties keep the lowest index.
func (p *Population) Best() (int, float64) {
	if len(p.Fitness) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(p.Fitness)
	return i, p.Fitness[i]
}

// MeanFitness returns the population's average fitness
func (p *Population) MeanFitness() float64 {
	if len(p.Fitness) == 0 {
		return 0
	}
	return stat.Mean(p.Fitness, nil)
}

// Clone makes a deep copy
func (p *Population) Clone() *Population {
	c := &Population{
		Genomes: make([][]float64, len(p.Genomes)),
		Fitness: make([]float64, len(p.Fitness)),
	}
	for i, g := range p.Genomes {
		c.Genomes[i] = nn.CloneGenome(g)
	}
	copy(c.Fitness, p.Fitness)
	return c
}

func checkShape(genomes [][]float64, fitness []float64) (int, error) {
	if len(genomes) != len(fitness) {
		return 0, fmt.Errorf("%w: %d genomes, %d fitness values", ErrLengthMismatch, len(genomes), len(fitness))
	}
	if len(genomes) == 0 {
		return 0, fmt.Errorf("%w: empty population", ErrLengthMismatch)
	}
	length := len(genomes[0])
	for i, g := range genomes {
		if len(g) != length {
			return 0, fmt.Errorf("%w: genome %d has %d genes, want %d", ErrLengthMismatch, i, len(g), length)
		}
	}
	return length, nil
}
