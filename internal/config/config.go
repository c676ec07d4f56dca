package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network topology fixed by the experimental protocol.
const (
	HiddenSize = 18
	OutputSize = 3

	BaseInputSize     = 37
	ExtendedInputSize = 45
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the root configuration structure
type Config struct {
	Seed       int64            `yaml:"seed"`
	NN         NNConfig         `yaml:"nn"`
	Perception PerceptionConfig `yaml:"perception"`
	GA         GAConfig         `yaml:"ga"`
	Arena      ArenaConfig      `yaml:"arena"`
	Rewards    RewardConfig     `yaml:"rewards"`
	Profiles   []ProfileConfig  `yaml:"profiles"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Measure    MeasureConfig    `yaml:"measure"`
	Logging    LogConfig        `yaml:"logging"`
}

// NNConfig defines neural network architecture
type NNConfig struct {
	InputSize  int `yaml:"input_size"`
	HiddenSize int `yaml:"hidden_size"`
	OutputSize int `yaml:"output_size"`
}

// PerceptionConfig holds the sensor geometry and normalization constants
type PerceptionConfig struct {
	Extended       bool    `yaml:"extended"` // adds danger/range neurons 37..44
	SensorRadius   float64 `yaml:"sensor_radius"`
	CloseRadius    float64 `yaml:"close_radius"`
	MaxPerQuadrant float64 `yaml:"max_per_quadrant"`
	MaxDelayPoint  float64 `yaml:"max_delay_point"`
	MaxAttackPoint float64 `yaml:"max_attack_point"`
	MaxFirePoint   float64 `yaml:"max_fire_point"`
	DangerNorm     float64 `yaml:"danger_norm"`
	RangeNorm      float64 `yaml:"range_norm"`
}

// GAConfig defines genetic algorithm parameters
type GAConfig struct {
	Population     int     `yaml:"population"`
	TournamentK    int     `yaml:"tournament_k"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`
	MaxGenerations int     `yaml:"max_generations"`
}

// ArenaConfig defines the reference battle environment
type ArenaConfig struct {
	Width             float64 `yaml:"width"`
	Depth             float64 `yaml:"depth"`
	DT                float64 `yaml:"dt"`
	EngagementSeconds float64 `yaml:"engagement_seconds"`
	TeamOffset        float64 `yaml:"team_offset"`    // team centers at -offset/+offset on X
	SpawnSpreadX      float64 `yaml:"spawn_spread_x"` // uniform jitter around the team center
	SpawnSpreadZ      float64 `yaml:"spawn_spread_z"`
	BodyRadius        float64 `yaml:"body_radius"`
	MeleeReach        float64 `yaml:"melee_reach"`
	RangedReach       float64 `yaml:"ranged_reach"`
	SpeedScale        float64 `yaml:"speed_scale"`
	DecisionInterval  float64 `yaml:"decision_interval"` // seconds, scaled by (1 + real delay)
	ConeCos           float64 `yaml:"cone_cos"`
}

// RewardConfig holds the flat reward/cost magnitudes.
// Damage based codes (RC2, RC3, RC5, RC7) take their magnitude from the event.
type RewardConfig struct {
	Move      float64 `yaml:"move"`      // RC1
	Wall      float64 `yaml:"wall"`      // RC4
	Collision float64 `yaml:"collision"` // RC6
	Idle      float64 `yaml:"idle"`      // RC8
}

// ProfileConfig is one unit type in the spawn roster
type ProfileConfig struct {
	Name        string  `yaml:"name"`
	Attack      int     `yaml:"attack"`
	Fire        int     `yaml:"fire"`
	Delay       int     `yaml:"delay"`
	Health      int     `yaml:"health"`
	AttackRange float64 `yaml:"attack_range"`
}

// CheckpointConfig defines checkpoint persistence
type CheckpointConfig struct {
	Path           string `yaml:"path"`
	Interval       int    `yaml:"interval"` // generations between saves, 0 saves only the last
	SavePopulation bool   `yaml:"save_population"`
	ArchivePath    string `yaml:"archive_path"` // empty disables the SQLite archive
}

// MeasureConfig defines measurement batches
type MeasureConfig struct {
	Battles  int    `yaml:"battles"`
	BaseSeed int64  `yaml:"base_seed"`
	Mode     string `yaml:"mode"` // paper|best-vs-pop
	CSVPath  string `yaml:"csv_path"`
	Workers  int    `yaml:"workers"` // 0 = NumCPU
}

// LogConfig defines logging parameters
type LogConfig struct {
	CSVPath string `yaml:"csv_path"`
	Level   string `yaml:"level"`  // debug|info|warn|error
	Format  string `yaml:"format"` // text|json
}

// Measurement modes.
const (
	ModePaper     = "paper"
	ModeBestVsPop = "best-vs-pop"
)

// Default returns the embedded default configuration.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: parsing embedded defaults: %v", err))
	}
	return cfg
}

// Load reads a YAML config file over the embedded defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the training pipeline depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.NN.HiddenSize != HiddenSize {
		errs = append(errs, fmt.Errorf("nn.hidden_size must be %d, got %d", HiddenSize, c.NN.HiddenSize))
	}
	if c.NN.OutputSize != OutputSize {
		errs = append(errs, fmt.Errorf("nn.output_size must be %d, got %d", OutputSize, c.NN.OutputSize))
	}
	if want := c.ExpectedInputSize(); c.NN.InputSize != want {
		errs = append(errs, fmt.Errorf("nn.input_size must be %d for extended=%t, got %d",
			want, c.Perception.Extended, c.NN.InputSize))
	}
	if c.GA.Population < 2 {
		errs = append(errs, fmt.Errorf("ga.population must be at least 2, got %d", c.GA.Population))
	}
	if c.GA.TournamentK < 1 {
		errs = append(errs, fmt.Errorf("ga.tournament_k must be at least 1, got %d", c.GA.TournamentK))
	}
	if c.GA.CrossoverRate < 0 || c.GA.CrossoverRate > 1 {
		errs = append(errs, fmt.Errorf("ga.crossover_rate out of [0,1]: %v", c.GA.CrossoverRate))
	}
	if c.GA.MutationRate < 0 || c.GA.MutationRate > 1 {
		errs = append(errs, fmt.Errorf("ga.mutation_rate out of [0,1]: %v", c.GA.MutationRate))
	}
	if c.GA.MaxGenerations < 0 {
		errs = append(errs, fmt.Errorf("ga.max_generations must not be negative"))
	}
	if c.Arena.DT <= 0 {
		errs = append(errs, fmt.Errorf("arena.dt must be positive"))
	}
	if c.Arena.EngagementSeconds <= 0 {
		errs = append(errs, fmt.Errorf("arena.engagement_seconds must be positive"))
	}
	if c.Arena.BodyRadius < 0 {
		errs = append(errs, fmt.Errorf("arena.body_radius must not be negative"))
	}
	if c.Arena.Width <= 2*c.Arena.BodyRadius || c.Arena.Depth <= 2*c.Arena.BodyRadius {
		errs = append(errs, fmt.Errorf("arena.width and depth must exceed twice body_radius, got %vx%v with radius %v",
			c.Arena.Width, c.Arena.Depth, c.Arena.BodyRadius))
	}
	if c.Arena.ConeCos < -1 || c.Arena.ConeCos > 1 {
		errs = append(errs, fmt.Errorf("arena.cone_cos out of [-1,1]: %v", c.Arena.ConeCos))
	}
	if c.Checkpoint.Interval < 0 {
		errs = append(errs, fmt.Errorf("checkpoint.interval must not be negative, got %d", c.Checkpoint.Interval))
	}
	if c.Perception.SensorRadius <= 0 || c.Perception.MaxPerQuadrant <= 0 {
		errs = append(errs, fmt.Errorf("perception.sensor_radius and max_per_quadrant must be positive"))
	}
	if len(c.Profiles) == 0 {
		errs = append(errs, fmt.Errorf("profiles: at least one unit profile is required"))
	}
	for i, p := range c.Profiles {
		if p.Health <= 0 {
			errs = append(errs, fmt.Errorf("profiles[%d] %q: health must be positive", i, p.Name))
		}
	}
	if c.Measure.Battles < 1 {
		errs = append(errs, fmt.Errorf("measure.battles must be at least 1, got %d", c.Measure.Battles))
	}
	switch c.Measure.Mode {
	case ModePaper, ModeBestVsPop:
	default:
		errs = append(errs, fmt.Errorf("measure.mode must be %q or %q, got %q", ModePaper, ModeBestVsPop, c.Measure.Mode))
	}

	return errors.Join(errs...)
}

// ExpectedInputSize returns the perception vector length for the configured variant
func (c *Config) ExpectedInputSize() int {
	if c.Perception.Extended {
		return ExtendedInputSize
	}
	return BaseInputSize
}

// GenomeLength returns the chromosome length for the configured network
func (c *Config) GenomeLength() int {
	return c.NN.InputSize*c.NN.HiddenSize + c.NN.HiddenSize*c.NN.OutputSize
}

// TeamSize returns the number of slots per team.
func (c *Config) TeamSize() int {
	return c.GA.Population / 2
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
