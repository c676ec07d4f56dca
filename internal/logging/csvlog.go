package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/Matharrr/PSO-in-RTS/internal/ga"
)

// GenerationRow is one line of the training log
type GenerationRow struct {
	Generation      int     `csv:"generation"`
	BestFitnessGen  float64 `csv:"best_fitness_gen"`
	BestFitnessEver float64 `csv:"best_fitness_ever"`
	AverageFitness  float64 `csv:"average_fitness"`
	EliteIndex      int     `csv:"elite_index"`
}

// RowFromReport converts an engine report into a training log row
func RowFromReport(r ga.Report) GenerationRow {
	return GenerationRow{
		Generation:      r.Generation,
		BestFitnessGen:  r.BestFitness,
		BestFitnessEver: r.BestFitnessEver,
		AverageFitness:  r.MeanFitness,
		EliteIndex:      r.BestIndex,
	}
}

// MeasurementRow is one line of the measurement log. The last row of a batch
// has Mode "summary": Win holds the win rate in percent and the fitness
// columns hold batch means.
type MeasurementRow struct {
	Mode            string  `csv:"mode"`
	Seed            int64   `csv:"seed"`
	BattleIndex     int     `csv:"battle_index"`
	Win             float64 `csv:"win"`
	AliveA          float64 `csv:"alive_a"`
	AliveB          float64 `csv:"alive_b"`
	TeamAAvgFitness float64 `csv:"team_a_avg_fitness"`
	TeamBAvgFitness float64 `csv:"team_b_avg_fitness"`
}

// csvFile appends records to a CSV file, writing the header once
type csvFile struct {
	file          *os.File
	headerWritten bool
}

func openFile(path string, flags int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

func openCSV(path string) (*csvFile, error) {
	f, err := openFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return nil, err
	}
	return &csvFile{file: f}, nil
}

func writeRecords[T any](c *csvFile, records []T) error {
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.file); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.file)
}

func (c *csvFile) Close() error {
	return c.file.Close()
}

// TrainingLog writes one row per generation
type TrainingLog struct {
	csv *csvFile
}

// NewTrainingLog creates or truncates the training log
func NewTrainingLog(path string) (*TrainingLog, error) {
	c, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	return &TrainingLog{csv: c}, nil
}

// ResumeTrainingLog reopens the training log of an interrupted run. Rows for
// generation and later are dropped because the resumed run writes them again.
func ResumeTrainingLog(path string, generation int) (*TrainingLog, error) {
	f, err := openFile(path, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return nil, err
	}
	kept, dropped, err := readRowsBefore(f, generation)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewinding %s: %w", path, err)
	}

	c := &csvFile{file: f}
	if len(kept) > 0 {
		if err := writeRecords(c, kept); err != nil {
			f.Close()
			return nil, fmt.Errorf("rewriting %s: %w", path, err)
		}
	}
	if dropped > 0 {
		slog.Info("training log rewound", "generation", generation, "dropped_rows", dropped)
	}
	return &TrainingLog{csv: c}, nil
}

func readRowsBefore(f *os.File, generation int) ([]GenerationRow, int, error) {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return nil, 0, err
	}
	var rows []GenerationRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, 0, err
	}
	kept := rows[:0]
	for _, r := range rows {
		if r.Generation < generation {
			kept = append(kept, r)
		}
	}
	return kept, len(rows) - len(kept), nil
}

// Record writes a generation row and logs it
func (l *TrainingLog) Record(r ga.Report) error {
	row := RowFromReport(r)
	slog.Info("generation",
		"generation", row.Generation,
		"best_fitness", row.BestFitnessGen,
		"best_fitness_ever", row.BestFitnessEver,
		"average_fitness", row.AverageFitness,
		"elite_index", row.EliteIndex,
		"alive_a", r.AliveA,
		"alive_b", r.AliveB,
	)
	if err := writeRecords(l.csv, []GenerationRow{row}); err != nil {
		return fmt.Errorf("writing training log: %w", err)
	}
	return nil
}

// Close closes the file
func (l *TrainingLog) Close() error {
	return l.csv.Close()
}

// MeasurementLog writes measurement batches
type MeasurementLog struct {
	csv *csvFile
}

// NewMeasurementLog creates or truncates the measurement log
func NewMeasurementLog(path string) (*MeasurementLog, error) {
	c, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	return &MeasurementLog{csv: c}, nil
}

// Write appends rows
func (l *MeasurementLog) Write(rows []MeasurementRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := writeRecords(l.csv, rows); err != nil {
		return fmt.Errorf("writing measurement log: %w", err)
	}
	return nil
}

// Close closes the file
func (l *MeasurementLog) Close() error {
	return l.csv.Close()
}
