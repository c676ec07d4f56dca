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
	"syscall"

	"github.com/Matharrr/PSO-in-RTS/internal/arena"
	"github.com/Matharrr/PSO-in-RTS/internal/checkpoint"
	"github.com/Matharrr/PSO-in-RTS/internal/config"
	"github.com/Matharrr/PSO-in-RTS/internal/eval"
	"github.com/Matharrr/PSO-in-RTS/internal/ga"
	"github.com/Matharrr/PSO-in-RTS/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are embedded)")
	checkpointPath := flag.String("checkpoint", "", "override checkpoint.path")
	mode := flag.String("mode", "", "override measure.mode (paper|best-vs-pop)")
	battles := flag.Int("battles", 0, "override measure.battles")
	baseSeed := flag.Int64("seed", 0, "override measure.base_seed")
	out := flag.String("out", "", "override measure.csv_path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *checkpointPath != "" {
		cfg.Checkpoint.Path = *checkpointPath
	}
	if *mode != "" {
		cfg.Measure.Mode = *mode
	}
	if *battles > 0 {
		cfg.Measure.Battles = *battles
	}
	if *baseSeed != 0 {
		cfg.Measure.BaseSeed = *baseSeed
	}
	if *out != "" {
		cfg.Measure.CSVPath = *out
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		os.Exit(1)
	}

	if _, err := logging.Setup(cfg.Logging, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("measurement failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := checkpoint.Load(cfg.Checkpoint.Path, cfg.GA.Population, cfg.GenomeLength())
	if err != nil {
		return err
	}
	if st.Population == nil {
		return errors.New("checkpoint has no usable population; train with checkpoint.save_population enabled")
	}

	measurer := eval.NewMeasurer(func(rng *rand.Rand) ga.Environment {
		return arena.New(cfg, rng)
	}, eval.OptionsFromConfig(cfg))

	slog.Info("measurement started",
		"checkpoint", cfg.Checkpoint.Path,
		"generation", st.Generation,
		"mode", cfg.Measure.Mode,
		"battles", cfg.Measure.Battles,
		"base_seed", cfg.Measure.BaseSeed,
	)

	res, err := measurer.Run(ctx, st.Population, st.BestGenome)
	if err != nil {
		return err
	}

	log, err := logging.NewMeasurementLog(cfg.Measure.CSVPath)
	if err != nil {
		return err
	}
	defer log.Close()
	if err := log.Write(res.Rows()); err != nil {
		return err
	}

	slog.Info("measurement written",
		"path", cfg.Measure.CSVPath,
		"win_rate", res.Summary.WinRate,
		"mean_alive_a", res.Summary.MeanAliveA,
		"mean_alive_b", res.Summary.MeanAliveB,
		"team_a_fitness", res.Summary.MeanTeamAFitness,
	)
	return nil
}
