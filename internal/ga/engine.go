package ga

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/Matharrr/PSO-in-RTS/internal/agent"
	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

// Environment is the battle simulation the engine evaluates genomes in
type Environment interface {
	Clear()
	Spawn(team agent.Team, genome []float64, slot int) error
	Run(duration time.Duration) error
	AliveCount(team agent.Team) int
	Fitness(slot int) float64
}

// Options configure an Engine
type Options struct {
	Population     int
	GenomeLength   int
	MaxGenerations int
	Engagement     time.Duration
	Seed           int64
	Operators      Operators
}

// OptionsFromConfig derives engine options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Population:     cfg.GA.Population,
		GenomeLength:   cfg.GenomeLength(),
		MaxGenerations: cfg.GA.MaxGenerations,
		Engagement:     time.Duration(cfg.Arena.EngagementSeconds * float64(time.Second)),
		Seed:           cfg.Seed,
		Operators: Operators{
			TournamentK:   cfg.GA.TournamentK,
			CrossoverRate: cfg.GA.CrossoverRate,
			MutationRate:  cfg.GA.MutationRate,
		},
	}
}

// Report summarizes one evaluated generation
type Report struct {
	Generation      int
	BestIndex       int
	BestFitness     float64
	BestFitnessEver float64
	MeanFitness     float64
	AliveA          int
	AliveB          int
	Elapsed         time.Duration
}

// Snapshot is the persistent state of an engine
type Snapshot struct {
	Generation      int
	BestFitnessEver float64
	BestGenome      []float64   // nil when no generation has been evaluated
	Population      [][]float64 // nil when no population should be restored
}

// Hook runs after a generation's fitness is collected and before it evolves
type Hook func(r Report) error

// Engine drives the generation loop
type Engine struct {
	env  Environment
	opts Options
	rng  *rand.Rand

	pop        *Population
	generation int
	bestEver   float64
	bestGenome []float64
	hooks      []Hook
}

// NewEngine creates an engine with a random initial population drawn from rng.
// rng is the random source shared with the environment.
func NewEngine(env Environment, opts Options, rng *rand.Rand) (*Engine, error) {
	if opts.Population < 2 {
		return nil, fmt.Errorf("ga: population %d too small", opts.Population)
	}
	if opts.GenomeLength < 1 {
		return nil, fmt.Errorf("%w: genome length %d", ErrLengthMismatch, opts.GenomeLength)
	}
	return &Engine{
		env:      env,
		opts:     opts,
		rng:      rng,
		pop:      NewPopulation(opts.Population, opts.GenomeLength, rng),
		bestEver: math.Inf(-1),
	}, nil
}

// OnGeneration registers a hook. Hooks run in registration order and a hook
// error aborts the run.
func (e *Engine) OnGeneration(h Hook) {
	e.hooks = append(e.hooks, h)
}

// Resume continues from a saved snapshot. A snapshot with a population holds
// the genomes evaluated in its generation, so that generation runs again under
// its own seed and the run continues exactly as an uninterrupted one would.
// Without a population the engine keeps its fresh one and moves on to the
// following generation.
func (e *Engine) Resume(s Snapshot) error {
	if s.BestGenome != nil {
		if len(s.BestGenome) != e.opts.GenomeLength {
			return fmt.Errorf("%w: best genome has %d genes, want %d", ErrLengthMismatch, len(s.BestGenome), e.opts.GenomeLength)
		}
	}
	if s.Population != nil {
		if len(s.Population) != e.opts.Population {
			return fmt.Errorf("%w: snapshot population %d, want %d", ErrLengthMismatch, len(s.Population), e.opts.Population)
		}
		pop, err := FromGenomes(s.Population, e.opts.GenomeLength)
		if err != nil {
			return err
		}
		e.pop = pop
	}
	if s.BestGenome != nil {
		e.bestGenome = nn.CloneGenome(s.BestGenome)
		e.bestEver = s.BestFitnessEver
	}
	e.generation = s.Generation + 1
	if s.Population != nil {
		e.generation = s.Generation
	}
	return nil
}

// Run evolves until the maximum generation or until ctx is cancelled.
// Cancellation is checked between generations only.
func (e *Engine) Run(ctx context.Context) error {
	for e.generation < e.opts.MaxGenerations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one generation: assign, engage, collect, record best, hooks, evolve.
func (e *Engine) Step() (Report, error) {
	start := time.Now()
	gen := e.generation
	e.rng.Seed(e.opts.Seed + int64(gen))

	if err := e.assign(); err != nil {
		return Report{}, fmt.Errorf("generation %d: %w", gen, err)
	}
	if err := e.env.Run(e.opts.Engagement); err != nil {
		return Report{}, fmt.Errorf("generation %d: engagement: %w", gen, err)
	}
	e.collect()

	bestIdx, bestFit := e.pop.Best()
	if e.bestGenome == nil || bestFit > e.bestEver {
		e.bestEver = bestFit
		e.bestGenome = nn.CloneGenome(e.pop.Genomes[bestIdx])
	}

	report := Report{
		Generation:      gen,
		BestIndex:       bestIdx,
		BestFitness:     bestFit,
		BestFitnessEver: e.bestEver,
		MeanFitness:     e.pop.MeanFitness(),
		AliveA:          e.env.AliveCount(agent.TeamA),
		AliveB:          e.env.AliveCount(agent.TeamB),
	}

	for _, h := range e.hooks {
		if err := h(report); err != nil {
			return report, fmt.Errorf("generation %d: %w", gen, err)
		}
	}

	next, _, err := Evolve(e.pop.Genomes, e.pop.Fitness, e.opts.Operators, e.rng)
	if err != nil {
		return report, fmt.Errorf("generation %d: %w", gen, err)
	}
	e.pop.Genomes = next
	e.generation++

	report.Elapsed = time.Since(start)
	slog.Debug("generation evolved",
		"generation", gen,
		"elite_index", bestIdx,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// assign resets fitness and spawns slot i with genome i; the first half is team A
func (e *Engine) assign() error {
	e.pop.ResetFitness()
	e.env.Clear()

	half := e.pop.Size() / 2
	for i, g := range e.pop.Genomes {
		if len(g) != e.opts.GenomeLength {
			return fmt.Errorf("%w: slot %d has %d genes, want %d", ErrLengthMismatch, i, len(g), e.opts.GenomeLength)
		}
		team := agent.TeamA
		if i >= half {
			team = agent.TeamB
		}
		if err := e.env.Spawn(team, g, i); err != nil {
			return fmt.Errorf("spawn slot %d: %w", i, err)
		}
	}
	return nil
}

func (e *Engine) collect() {
	for i := range e.pop.Fitness {
		e.pop.Fitness[i] = e.env.Fitness(i)
	}
}

// Snapshot captures generation, best-ever and the current population.
// Called from a hook, the population is the one just evaluated.
func (e *Engine) Snapshot(withPopulation bool) Snapshot {
	s := Snapshot{Generation: e.generation}
	if e.bestGenome != nil {
		s.BestFitnessEver = e.bestEver
		s.BestGenome = nn.CloneGenome(e.bestGenome)
	}
	if withPopulation {
		s.Population = e.pop.Clone().Genomes
	}
	return s
}

// Population returns a copy of the engine's current population
func (e *Engine) Population() *Population {
	return e.pop.Clone()
}

// Generation returns the index of the next generation to run
func (e *Engine) Generation() int {
	return e.generation
}

// BestEver returns the best fitness seen so far and its genome.
// ok is false before the first generation completes.
func (e *Engine) BestEver() (fitness float64, genome []float64, ok bool) {
	if e.bestGenome == nil {
		return 0, nil, false
	}
	return e.bestEver, nn.CloneGenome(e.bestGenome), true
}
