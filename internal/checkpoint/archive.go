package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// GenerationEntry is one archived training-log row
type GenerationEntry struct {
	Generation      int
	BestFitnessGen  float64
	BestFitnessEver float64
	AverageFitness  float64
	EliteIndex      int
}

// Archive keeps every checkpoint and generation summary of a run in SQLite
type Archive struct {
	db    *sql.DB
	runID string
}

// OpenArchive opens or creates the archive at path. An empty runID starts a new run.
func OpenArchive(ctx context.Context, path, runID string) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: register run: %w", err)
	}

	return &Archive{db: db, runID: runID}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best_fitness_ever REAL NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		)`,
		`CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best_fitness_gen REAL NOT NULL,
			best_fitness_ever REAL NOT NULL,
			average_fitness REAL NOT NULL,
			elite_index INTEGER NOT NULL,
			PRIMARY KEY (run_id, generation)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RunID returns the run this archive writes to
func (a *Archive) RunID() string {
	return a.runID
}

// SaveCheckpoint stores rec; saving the same generation again replaces it
func (a *Archive) SaveCheckpoint(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, generation, best_fitness_ever, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			best_fitness_ever = excluded.best_fitness_ever,
			payload = excluded.payload
	`, a.runID, rec.Generation, rec.BestFitnessEver, payload)
	if err != nil {
		return fmt.Errorf("archive: save checkpoint %d: %w", rec.Generation, err)
	}
	return nil
}

// LatestCheckpoint decodes the newest checkpoint of the run with the same
// validation as Load. It returns ErrNotFound when the run has none.
func (a *Archive) LatestCheckpoint(ctx context.Context, populationSize, genomeLength int) (*State, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `
		SELECT payload FROM checkpoints
		WHERE run_id = ?
		ORDER BY generation DESC
		LIMIT 1
	`, a.runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, a.runID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return Decode(payload, populationSize, genomeLength)
}

// RecordGeneration stores one generation summary
func (a *Archive) RecordGeneration(ctx context.Context, e GenerationEntry) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO generations (run_id, generation, best_fitness_gen, best_fitness_ever, average_fitness, elite_index)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			best_fitness_gen = excluded.best_fitness_gen,
			best_fitness_ever = excluded.best_fitness_ever,
			average_fitness = excluded.average_fitness,
			elite_index = excluded.elite_index
	`, a.runID, e.Generation, e.BestFitnessGen, e.BestFitnessEver, e.AverageFitness, e.EliteIndex)
	if err != nil {
		return fmt.Errorf("archive: record generation %d: %w", e.Generation, err)
	}
	return nil
}

// Generations lists the run's generation summaries in order
func (a *Archive) Generations(ctx context.Context) ([]GenerationEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT generation, best_fitness_gen, best_fitness_ever, average_fitness, elite_index
		FROM generations
		WHERE run_id = ?
		ORDER BY generation
	`, a.runID)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer rows.Close()

	var out []GenerationEntry
	for rows.Next() {
		var e GenerationEntry
		if err := rows.Scan(&e.Generation, &e.BestFitnessGen, &e.BestFitnessEver, &e.AverageFitness, &e.EliteIndex); err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}
