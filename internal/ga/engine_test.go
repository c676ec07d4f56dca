package ga

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/Matharrr/PSO-in-RTS/internal/agent"
)

// sumEnv scores each slot by the sum of its genes.
type sumEnv struct {
	genomes  map[int][]float64
	teams    map[int]agent.Team
	clears   int
	runs     int
	duration time.Duration
	spawnErr error
}

func newSumEnv() *sumEnv {
	return &sumEnv{genomes: map[int][]float64{}, teams: map[int]agent.Team{}}
}

func (s *sumEnv) Clear() {
	s.clears++
	clear(s.genomes)
	clear(s.teams)
}

func (s *sumEnv) Spawn(team agent.Team, genome []float64, slot int) error {
	if s.spawnErr != nil {
		return s.spawnErr
	}
	s.genomes[slot] = slices.Clone(genome)
	s.teams[slot] = team
	return nil
}

func (s *sumEnv) Run(d time.Duration) error {
	s.runs++
	s.duration = d
	return nil
}

func (s *sumEnv) AliveCount(team agent.Team) int {
	n := 0
	for _, t := range s.teams {
		if t == team {
			n++
		}
	}
	return n
}

func (s *sumEnv) Fitness(slot int) float64 {
	total := 0.0
	for _, v := range s.genomes[slot] {
		total += v
	}
	return total
}

func testOptions() Options {
	return Options{
		Population:     6,
		GenomeLength:   5,
		MaxGenerations: 4,
		Engagement:     10 * time.Second,
		Seed:           42,
		Operators:      Operators{TournamentK: 3, CrossoverRate: 0.9, MutationRate: 0.2},
	}
}

func TestEngineAssignsTeamsBySlot(t *testing.T) {
	env := newSumEnv()
	e, err := NewEngine(env, testOptions(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatal(err)
	}
	initial := e.Population().Clone()

	r, err := e.Step()
	if err != nil {
		t.Fatal(err)
	}
	if env.clears != 1 || env.runs != 1 || env.duration != 10*time.Second {
		t.Errorf("clears=%d runs=%d duration=%v", env.clears, env.runs, env.duration)
	}
	for slot := 0; slot < 6; slot++ {
		want := agent.TeamA
		if slot >= 3 {
			want = agent.TeamB
		}
		if env.teams[slot] != want {
			t.Errorf("slot %d on %v, want %v", slot, env.teams[slot], want)
		}
		if !slices.Equal(env.genomes[slot], initial.Genomes[slot]) {
			t.Errorf("slot %d was not given genome %d", slot, slot)
		}
	}
	if r.AliveA != 3 || r.AliveB != 3 || r.Generation != 0 {
		t.Errorf("report %+v", r)
	}
	if e.Generation() != 1 {
		t.Errorf("generation = %d, want 1", e.Generation())
	}
}

func TestEngineEliteCarriesOver(t *testing.T) {
	e, err := NewEngine(newSumEnv(), testOptions(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatal(err)
	}

	var elite []float64
	e.OnGeneration(func(r Report) error {
		elite = slices.Clone(e.Population().Genomes[r.BestIndex])
		return nil
	})

	for g := 0; g < 3; g++ {
		if _, err := e.Step(); err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(e.Population().Genomes[0], elite) {
			t.Fatalf("generation %d: slot 0 is not the previous elite", g)
		}
	}
}

func TestEngineBestEverNeverDecreases(t *testing.T) {
	e, err := NewEngine(newSumEnv(), testOptions(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := e.BestEver(); ok {
		t.Fatal("best-ever set before any generation")
	}

	prev := -1e18
	for g := 0; g < 4; g++ {
		r, err := e.Step()
		if err != nil {
			t.Fatal(err)
		}
		if r.BestFitnessEver < prev {
			t.Fatalf("best-ever dropped from %v to %v", prev, r.BestFitnessEver)
		}
		if r.BestFitnessEver < r.BestFitness {
			t.Fatalf("best-ever %v below generation best %v", r.BestFitnessEver, r.BestFitness)
		}
		prev = r.BestFitnessEver
	}

	fit, genome, ok := e.BestEver()
	if !ok || len(genome) != 5 || fit != prev {
		t.Errorf("BestEver = %v %v %v", fit, genome, ok)
	}
}

func TestEngineDeterministic(t *testing.T) {
	run := func() [][]float64 {
		e, err := NewEngine(newSumEnv(), testOptions(), rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		return e.Population().Genomes
	}

	a, b := run(), run()
	for i := range a {
		if !slices.Equal(a[i], b[i]) {
			t.Fatalf("slot %d differs between identical runs", i)
		}
	}
}

func TestEngineRunStopsAtMaxGenerations(t *testing.T) {
	env := newSumEnv()
	e, err := NewEngine(env, testOptions(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if env.runs != 4 || e.Generation() != 4 {
		t.Errorf("runs=%d generation=%d, want 4", env.runs, e.Generation())
	}
}

func TestEngineRunCancelled(t *testing.T) {
	env := newSumEnv()
	e, err := NewEngine(env, testOptions(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.OnGeneration(func(r Report) error {
		if r.Generation == 1 {
			cancel()
		}
		return nil
	})

	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if env.runs != 2 {
		t.Errorf("generation in flight should finish: runs = %d, want 2", env.runs)
	}
}

func TestEngineHookErrorAborts(t *testing.T) {
	e, err := NewEngine(newSumEnv(), testOptions(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("disk full")
	e.OnGeneration(func(Report) error { return boom })

	if err := e.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want hook error", err)
	}
	if e.Generation() != 0 {
		t.Errorf("failed generation should not advance the counter")
	}
}

func TestEngineSpawnError(t *testing.T) {
	env := newSumEnv()
	env.spawnErr = errors.New("bad genome")
	e, err := NewEngine(env, testOptions(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(); !errors.Is(err, env.spawnErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineResume(t *testing.T) {
	opts := testOptions()
	src, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	src.OnGeneration(func(Report) error {
		snap = src.Snapshot(true)
		return nil
	})
	if _, err := src.Step(); err != nil {
		t.Fatal(err)
	}
	if snap.Generation != 0 || len(snap.Population) != opts.Population {
		t.Fatalf("snapshot %+v", snap)
	}

	dst, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Resume(snap); err != nil {
		t.Fatal(err)
	}
	if dst.Generation() != 0 {
		t.Errorf("resume generation = %d, want the snapshot generation 0", dst.Generation())
	}
	for i := range snap.Population {
		if !slices.Equal(dst.Population().Genomes[i], snap.Population[i]) {
			t.Fatalf("slot %d not restored", i)
		}
	}
	fit, genome, ok := dst.BestEver()
	if !ok || fit != snap.BestFitnessEver || !slices.Equal(genome, snap.BestGenome) {
		t.Error("best-ever not restored")
	}

	bad := snap
	bad.Population = snap.Population[:2]
	if err := dst.Resume(bad); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("short population: got %v", err)
	}

	bestOnly := snap
	bestOnly.Population = nil
	fresh, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.Resume(bestOnly); err != nil {
		t.Fatal(err)
	}
	if fresh.Generation() != 1 {
		t.Errorf("resume without population: generation = %d, want 1", fresh.Generation())
	}
}

func TestEngineResumeMatchesUninterruptedRun(t *testing.T) {
	opts := testOptions()

	full, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(opts.Seed)))
	if err != nil {
		t.Fatal(err)
	}
	var fullReports []Report
	full.OnGeneration(func(r Report) error {
		fullReports = append(fullReports, r)
		return nil
	})
	if err := full.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for stopAt := 0; stopAt < opts.MaxGenerations; stopAt++ {
		first, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(opts.Seed)))
		if err != nil {
			t.Fatal(err)
		}
		var snap Snapshot
		ctx, cancel := context.WithCancel(context.Background())
		first.OnGeneration(func(r Report) error {
			if r.Generation == stopAt {
				snap = first.Snapshot(true)
				cancel()
			}
			return nil
		})
		if err := first.Run(ctx); !errors.Is(err, context.Canceled) && stopAt < opts.MaxGenerations-1 {
			t.Fatalf("stop at %d: %v", stopAt, err)
		}
		cancel()

		resumed, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(opts.Seed)))
		if err != nil {
			t.Fatal(err)
		}
		if err := resumed.Resume(snap); err != nil {
			t.Fatal(err)
		}
		var reports []Report
		resumed.OnGeneration(func(r Report) error {
			reports = append(reports, r)
			return nil
		})
		if err := resumed.Run(context.Background()); err != nil {
			t.Fatal(err)
		}

		for i, r := range reports {
			want := fullReports[stopAt+i]
			r.Elapsed, want.Elapsed = 0, 0
			if r != want {
				t.Errorf("stop at %d: report %+v, want %+v", stopAt, r, want)
			}
		}
		got, want := resumed.Population().Genomes, full.Population().Genomes
		for i := range want {
			if !slices.Equal(got[i], want[i]) {
				t.Fatalf("stop at %d: slot %d differs from the uninterrupted run", stopAt, i)
			}
		}
		gotFit, gotBest, _ := resumed.BestEver()
		wantFit, wantBest, _ := full.BestEver()
		if gotFit != wantFit || !slices.Equal(gotBest, wantBest) {
			t.Errorf("stop at %d: best-ever differs", stopAt)
		}
	}
}

func TestEngineAccessorsReturnCopies(t *testing.T) {
	e, err := NewEngine(newSumEnv(), testOptions(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatal(err)
	}

	_, best, _ := e.BestEver()
	best[0] = 99
	if _, again, _ := e.BestEver(); again[0] == 99 {
		t.Error("BestEver aliases the engine's genome")
	}

	pop := e.Population()
	pop.Genomes[0][0] = 99
	if e.Population().Genomes[0][0] == 99 {
		t.Error("Population aliases the engine's genomes")
	}
}

func TestNewEngineRejectsBadOptions(t *testing.T) {
	opts := testOptions()
	opts.Population = 1
	if _, err := NewEngine(newSumEnv(), opts, rand.New(rand.NewSource(1))); err == nil {
		t.Error("population 1 should be rejected")
	}
}
