package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Matharrr/PSO-in-RTS/internal/arena"
	"github.com/Matharrr/PSO-in-RTS/internal/checkpoint"
	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/ga"
	"github.com/Matharrr/PSO-in-RTS/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are embedded)")
	generations := flag.Int("generations", 0, "override ga.max_generations")
	seed := flag.Int64("seed", 0, "override the training seed")
	resume := flag.Bool("resume", false, "continue from the last checkpoint")
	archivePath := flag.String("archive", "", "override checkpoint.archive_path (SQLite)")
	runID := flag.String("run-id", "", "archive run id to resume (new run when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *generations > 0 {
		cfg.GA.MaxGenerations = *generations
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *archivePath != "" {
		cfg.Checkpoint.ArchivePath = *archivePath
	}

	if _, err := logging.Setup(cfg.Logging, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resume, *runID); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("training interrupted; resume from the last checkpoint")
			return
		}
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, resume bool, runID string) error {
	rng := rand.New(rand.NewSource(cfg.Seed))
	env := arena.New(cfg, rng)

	engine, err := ga.NewEngine(env, ga.OptionsFromConfig(cfg), rng)
	if err != nil {
		return err
	}

	var archive *checkpoint.Archive
	if cfg.Checkpoint.ArchivePath != "" {
		archive, err = checkpoint.OpenArchive(ctx, cfg.Checkpoint.ArchivePath, runID)
		if err != nil {
			return err
		}
		defer archive.Close()
		slog.Info("checkpoint archive open", "path", cfg.Checkpoint.ArchivePath, "run_id", archive.RunID())
	}

	if resume {
		if err := restore(ctx, cfg, engine, archive); err != nil {
			return err
		}
	}

	var trainLog *logging.TrainingLog
	if resume {
		trainLog, err = logging.ResumeTrainingLog(cfg.Logging.CSVPath, engine.Generation())
	} else {
		trainLog, err = logging.NewTrainingLog(cfg.Logging.CSVPath)
	}
	if err != nil {
		return err
	}
	defer trainLog.Close()

	runDir := filepath.Dir(cfg.Checkpoint.Path)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}
	if err := cfg.WriteYAML(filepath.Join(runDir, "config.yaml")); err != nil {
		slog.Warn("could not write config copy", "error", err)
	}

	engine.OnGeneration(trainLog.Record)
	if archive != nil {
		engine.OnGeneration(func(r ga.Report) error {
			row := logging.RowFromReport(r)
			return archive.RecordGeneration(ctx, checkpoint.GenerationEntry{
				Generation:      row.Generation,
				BestFitnessGen:  row.BestFitnessGen,
				BestFitnessEver: row.BestFitnessEver,
				AverageFitness:  row.AverageFitness,
				EliteIndex:      row.EliteIndex,
			})
		})
	}
	engine.OnGeneration(func(r ga.Report) error {
		last := r.Generation == cfg.GA.MaxGenerations-1
		if !last && (cfg.Checkpoint.Interval <= 0 || (r.Generation+1)%cfg.Checkpoint.Interval != 0) {
			return nil
		}
		rec := checkpoint.FromSnapshot(engine.Snapshot(cfg.Checkpoint.SavePopulation))
		if err := checkpoint.Save(cfg.Checkpoint.Path, rec); err != nil {
			return err
		}
		if archive != nil {
			if err := archive.SaveCheckpoint(ctx, rec); err != nil {
				return err
			}
		}
		slog.Info("checkpoint saved", "generation", r.Generation, "path", cfg.Checkpoint.Path)
		return nil
	})

	slog.Info("training started",
		"population", cfg.GA.Population,
		"genome_length", cfg.GenomeLength(),
		"input_size", cfg.NN.InputSize,
		"generation", engine.Generation(),
		"max_generations", cfg.GA.MaxGenerations,
		"seed", cfg.Seed,
	)

	start := time.Now()
	if err := engine.Run(ctx); err != nil {
		return err
	}

	fitness, _, ok := engine.BestEver()
	slog.Info("training complete",
		"generations", engine.Generation(),
		"best_fitness_ever", fitness,
		"has_best", ok,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// restore loads the latest checkpoint into the engine. A missing or corrupt
// checkpoint is a warning and training starts fresh.
func restore(ctx context.Context, cfg *config.Config, engine *ga.Engine, archive *checkpoint.Archive) error {
	var (
		st  *checkpoint.State
		err error
	)
	if archive != nil {
		st, err = archive.LatestCheckpoint(ctx, cfg.GA.Population, cfg.GenomeLength())
	} else {
		st, err = checkpoint.Load(cfg.Checkpoint.Path, cfg.GA.Population, cfg.GenomeLength())
	}
	switch {
	case errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, checkpoint.ErrCorrupt):
		slog.Warn("no usable checkpoint, starting fresh", "error", err)
		return nil
	case err != nil:
		return err
	}

	if st.Population == nil {
		slog.Warn("checkpoint population not restored", "issues", len(st.Issues))
	}
	if err := engine.Resume(st.Snapshot()); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	slog.Info("resumed from checkpoint",
		"generation", st.Generation,
		"best_fitness_ever", st.BestFitnessEver,
		"population_restored", st.Population != nil,
	)
	return nil
}
