// Package checkpoint persists training state: generation, best-ever genome and
// optionally the whole population, flattened.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Matharrr/PSO-in-RTS/internal/ga"
	"github.com/Matharrr/PSO-in-RTS/internal/nn"
)

var (
	// ErrNotFound means no checkpoint exists; start fresh.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrShapeMismatch means a record disagrees with the running population size or genome length.
	ErrShapeMismatch = errors.New("checkpoint: shape mismatch")
	// ErrCorrupt means a record or one of its fields could not be decoded.
	ErrCorrupt = errors.New("checkpoint: corrupt")
)

// Record is the on-disk checkpoint format
type Record struct {
	Generation      int       `json:"generation"`
	BestFitnessEver float64   `json:"bestFitnessEver"`
	BestChromosome  []float64 `json:"bestChromosome"`
	PopulationSize  int       `json:"populationSize,omitempty"`
	ChromoLength    int       `json:"chromoLength,omitempty"`
	PopulationFlat  []float64 `json:"populationFlat,omitempty"`
}

// FromSnapshot converts engine state into a record
func FromSnapshot(s ga.Snapshot) Record {
	rec := Record{
		Generation:      s.Generation,
		BestFitnessEver: s.BestFitnessEver,
	}
	if s.BestGenome != nil {
		rec.BestChromosome = nn.CloneGenome(s.BestGenome)
	}
	if len(s.Population) > 0 {
		rec.PopulationSize = len(s.Population)
		rec.ChromoLength = len(s.Population[0])
		rec.PopulationFlat = Flatten(s.Population)
	}
	return rec
}

// Flatten concatenates genomes slot by slot
func Flatten(genomes [][]float64) []float64 {
	n := 0
	for _, g := range genomes {
		n += len(g)
	}
	flat := make([]float64, 0, n)
	for _, g := range genomes {
		flat = append(flat, g...)
	}
	return flat
}

// Unflatten splits flat into size genomes of length genes each
func Unflatten(flat []float64, size, length int) ([][]float64, error) {
	if size <= 0 || length <= 0 || len(flat) != size*length {
		return nil, fmt.Errorf("%w: %d values for %d x %d", ErrShapeMismatch, len(flat), size, length)
	}
	genomes := make([][]float64, size)
	for i := range genomes {
		genomes[i] = nn.CloneGenome(flat[i*length : (i+1)*length])
	}
	return genomes, nil
}

// Save writes rec to path atomically through a temp file and rename
func Save(path string, rec Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// State is what could be recovered from a checkpoint. Fields that failed
// validation are left empty and the reasons collected in Issues.
type State struct {
	Generation      int
	BestFitnessEver float64
	BestGenome      []float64   // nil when rejected or absent
	Population      [][]float64 // nil when rejected or absent
	Issues          []error
}

// Snapshot converts recovered state for the engine
func (s *State) Snapshot() ga.Snapshot {
	return ga.Snapshot{
		Generation:      s.Generation,
		BestFitnessEver: s.BestFitnessEver,
		BestGenome:      s.BestGenome,
		Population:      s.Population,
	}
}

// Load reads a checkpoint and validates it against population size and genome
// length. A missing file returns ErrNotFound; a file that is not a JSON object
// returns ErrCorrupt. Otherwise each part is recovered independently: a bad
// population does not prevent the best-ever genome from loading and the other
// way around.
func Load(path string, populationSize, genomeLength int) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return Decode(data, populationSize, genomeLength)
}

// Decode recovers state from an encoded record. See Load.
func Decode(data []byte, populationSize, genomeLength int) (*State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	st := &State{}
	issue := func(err error) {
		st.Issues = append(st.Issues, err)
		slog.Warn("checkpoint field rejected", "error", err)
	}

	if raw, ok := fields["generation"]; ok {
		if err := json.Unmarshal(raw, &st.Generation); err != nil {
			issue(fmt.Errorf("%w: generation: %v", ErrCorrupt, err))
		}
	}

	st.BestGenome = decodeBest(fields, genomeLength, &st.BestFitnessEver, issue)
	st.Population = decodePopulation(fields, populationSize, genomeLength, issue)
	return st, nil
}

func decodeBest(fields map[string]json.RawMessage, genomeLength int, fitness *float64, issue func(error)) []float64 {
	raw, ok := fields["bestChromosome"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var best []float64
	if err := json.Unmarshal(raw, &best); err != nil {
		issue(fmt.Errorf("%w: bestChromosome: %v", ErrCorrupt, err))
		return nil
	}
	if len(best) != genomeLength {
		issue(fmt.Errorf("%w: bestChromosome has %d genes, want %d", ErrShapeMismatch, len(best), genomeLength))
		return nil
	}

	var f float64
	if err := json.Unmarshal(fields["bestFitnessEver"], &f); err != nil {
		issue(fmt.Errorf("%w: bestFitnessEver: %v", ErrCorrupt, err))
		return nil
	}
	*fitness = f
	return best
}

func decodePopulation(fields map[string]json.RawMessage, populationSize, genomeLength int, issue func(error)) [][]float64 {
	raw, ok := fields["populationFlat"]
	if !ok || string(raw) == "null" {
		return nil
	}

	var size, length int
	if err := json.Unmarshal(fields["populationSize"], &size); err != nil {
		issue(fmt.Errorf("%w: populationSize: %v", ErrCorrupt, err))
		return nil
	}
	if err := json.Unmarshal(fields["chromoLength"], &length); err != nil {
		issue(fmt.Errorf("%w: chromoLength: %v", ErrCorrupt, err))
		return nil
	}
	if size != populationSize || length != genomeLength {
		issue(fmt.Errorf("%w: population %dx%d, running %dx%d", ErrShapeMismatch, size, length, populationSize, genomeLength))
		return nil
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		issue(fmt.Errorf("%w: populationFlat: %v", ErrCorrupt, err))
		return nil
	}
	genomes, err := Unflatten(flat, size, length)
	if err != nil {
		issue(err)
		return nil
	}
	return genomes
}
