// Package eval runs deterministic, non-evolving measurement batches of trained genomes.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Matharrr/PSO-in-RTS/internal/agent"
	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/ga"
	"github.com/Matharrr/PSO-in-RTS/internal/logging"
)

// ErrNoBestGenome is returned by best-vs-pop measurement without a best-ever genome
var ErrNoBestGenome = errors.New("eval: best-vs-pop needs a best-ever genome")

// EnvFactory creates an environment bound to a battle's random source
type EnvFactory func(rng *rand.Rand) ga.Environment

// Options configure a measurement batch
type Options struct {
	Mode       string
	Battles    int
	BaseSeed   int64
	Engagement time.Duration
	Workers    int
}

// OptionsFromConfig derives measurement options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:       cfg.Measure.Mode,
		Battles:    cfg.Measure.Battles,
		BaseSeed:   cfg.Measure.BaseSeed,
		Engagement: time.Duration(cfg.Arena.EngagementSeconds * float64(time.Second)),
		Workers:    cfg.Measure.Workers,
	}
}

// Battle is the outcome of one measured engagement
type Battle struct {
	Index        int
	Seed         int64
	AliveA       int
	AliveB       int
	TeamAFitness float64 // mean over team A slots
	TeamBFitness float64
}

// Win reports whether team A finished with more survivors
func (b Battle) Win() bool {
	return b.AliveA > b.AliveB
}

// Summary aggregates a batch
type Summary struct {
	Battles          int
	Wins             int
	WinRate          float64 // percent
	MeanAliveA       float64
	MeanAliveB       float64
	MeanTeamAFitness float64
	MeanTeamBFitness float64
}

// Result is a measured batch
type Result struct {
	Mode     string
	BaseSeed int64
	Battles  []Battle
	Summary  Summary
}

// Measurer runs measurement batches. Battle b reseeds its random source with
// BaseSeed+b, so each battle is reproducible on its own and battles can run
// on separate environments in parallel.
type Measurer struct {
	newEnv  EnvFactory
	opts    Options
	workers int
}

// NewMeasurer creates a measurer
func NewMeasurer(newEnv EnvFactory, opts Options) *Measurer {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Measurer{newEnv: newEnv, opts: opts, workers: workers}
}

// Lineup assigns genomes to slots for a mode. In paper mode slots keep the
// population order. In best-vs-pop mode team A is the best genome in every
// slot and team B the second half of the population.
func Lineup(mode string, population [][]float64, best []float64) ([][]float64, error) {
	switch mode {
	case config.ModePaper:
		return population, nil
	case config.ModeBestVsPop:
		if best == nil {
			return nil, ErrNoBestGenome
		}
		half := len(population) / 2
		lineup := make([][]float64, len(population))
		for i := range lineup {
			if i < half {
				lineup[i] = best
			} else {
				lineup[i] = population[i]
			}
		}
		return lineup, nil
	}
	return nil, fmt.Errorf("eval: unknown mode %q", mode)
}

// Run measures the population (and best genome for best-vs-pop). Genomes are
// never modified. Cancellation is checked before each battle starts.
func (m *Measurer) Run(ctx context.Context, population [][]float64, best []float64) (*Result, error) {
	if len(population) < 2 {
		return nil, fmt.Errorf("eval: population of %d cannot form two teams", len(population))
	}
	lineup, err := Lineup(m.opts.Mode, population, best)
	if err != nil {
		return nil, err
	}

	battles := make([]Battle, m.opts.Battles)
	errs := make([]error, m.opts.Battles)

	var wg sync.WaitGroup
	sem := make(chan struct{}, m.workers)

	for b := range battles {
		if ctx.Err() != nil {
			errs[b] = ctx.Err()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(b int) {
			defer wg.Done()
			defer func() { <-sem }()
			battles[b], errs[b] = m.battle(b, lineup)
		}(b)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	res := &Result{
		Mode:     m.opts.Mode,
		BaseSeed: m.opts.BaseSeed,
		Battles:  battles,
		Summary:  Summarize(battles),
	}
	slog.Info("measurement finished",
		"mode", res.Mode,
		"battles", res.Summary.Battles,
		"win_rate", res.Summary.WinRate,
		"team_a_fitness", res.Summary.MeanTeamAFitness,
	)
	return res, nil
}

func (m *Measurer) battle(index int, lineup [][]float64) (Battle, error) {
	seed := m.opts.BaseSeed + int64(index)
	rng := rand.New(rand.NewSource(seed))
	env := m.newEnv(rng)
	env.Clear()

	half := len(lineup) / 2
	for slot, g := range lineup {
		team := agent.TeamA
		if slot >= half {
			team = agent.TeamB
		}
		if err := env.Spawn(team, g, slot); err != nil {
			return Battle{}, fmt.Errorf("battle %d: spawn slot %d: %w", index, slot, err)
		}
	}
	if err := env.Run(m.opts.Engagement); err != nil {
		return Battle{}, fmt.Errorf("battle %d: %w", index, err)
	}

	fitA := make([]float64, 0, half)
	fitB := make([]float64, 0, len(lineup)-half)
	for slot := range lineup {
		if slot < half {
			fitA = append(fitA, env.Fitness(slot))
		} else {
			fitB = append(fitB, env.Fitness(slot))
		}
	}

	b := Battle{
		Index:        index,
		Seed:         seed,
		AliveA:       env.AliveCount(agent.TeamA),
		AliveB:       env.AliveCount(agent.TeamB),
		TeamAFitness: stat.Mean(fitA, nil),
		TeamBFitness: stat.Mean(fitB, nil),
	}
	slog.Debug("battle measured", "battle", index, "seed", seed, "alive_a", b.AliveA, "alive_b", b.AliveB)
	return b, nil
}

// Summarize aggregates battles
func Summarize(battles []Battle) Summary {
	s := Summary{Battles: len(battles)}
	if len(battles) == 0 {
		return s
	}

	aliveA := make([]float64, len(battles))
	aliveB := make([]float64, len(battles))
	fitA := make([]float64, len(battles))
	fitB := make([]float64, len(battles))
	for i, b := range battles {
		if b.Win() {
			s.Wins++
		}
		aliveA[i] = float64(b.AliveA)
		aliveB[i] = float64(b.AliveB)
		fitA[i] = b.TeamAFitness
		fitB[i] = b.TeamBFitness
	}

	s.WinRate = 100 * float64(s.Wins) / float64(len(battles))
	s.MeanAliveA = stat.Mean(aliveA, nil)
	s.MeanAliveB = stat.Mean(aliveB, nil)
	s.MeanTeamAFitness = stat.Mean(fitA, nil)
	s.MeanTeamBFitness = stat.Mean(fitB, nil)
	return s
}

// Rows converts the result into measurement log rows, summary last
func (r *Result) Rows() []logging.MeasurementRow {
	rows := make([]logging.MeasurementRow, 0, len(r.Battles)+1)
	for _, b := range r.Battles {
		win := 0.0
		if b.Win() {
			win = 1
		}
		rows = append(rows, logging.MeasurementRow{
			Mode:            r.Mode,
			Seed:            b.Seed,
			BattleIndex:     b.Index,
			Win:             win,
			AliveA:          float64(b.AliveA),
			AliveB:          float64(b.AliveB),
			TeamAAvgFitness: b.TeamAFitness,
			TeamBAvgFitness: b.TeamBFitness,
		})
	}
	rows = append(rows, logging.MeasurementRow{
		Mode:            "summary",
		Seed:            r.BaseSeed,
		BattleIndex:     r.Summary.Battles,
		Win:             r.Summary.WinRate,
		AliveA:          r.Summary.MeanAliveA,
		AliveB:          r.Summary.MeanAliveB,
		TeamAAvgFitness: r.Summary.MeanTeamAFitness,
		TeamBAvgFitness: r.Summary.MeanTeamBFitness,
	})
	return rows
}
