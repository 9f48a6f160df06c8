package config

import "time"

// Config represents the complete portmark configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Controller ControllerConfig `yaml:"controller"`
	Job        JobConfig        `yaml:"job"`
	Cartons    []CartonConfig   `yaml:"cartons,omitempty"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Recording  RecordingConfig  `yaml:"recording"`
	State      StateConfig      `yaml:"state"`
	API        APIConfig        `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// ControllerConfig describes the register link to the motion controller.
type ControllerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Transport selects the Link implementation.
	Transport string `yaml:"transport"`
	// Recipes is the register-group recipe file. Empty uses the built-in
	// layout.
	Recipes       string    `yaml:"recipes,omitempty"`
	RecipesBlake3 string    `yaml:"recipes_blake3,omitempty"`
	Sim           SimConfig `yaml:"sim,omitempty"`
}

// SimConfig tunes the simulated controller.
type SimConfig struct {
	CycleTime  time.Duration `yaml:"cycle_time"`
	PassCycles int           `yaml:"pass_cycles"`
	HomeCycles int           `yaml:"home_cycles"`
	HaltAt     []int         `yaml:"halt_at,omitempty"`
}

// JobConfig describes what to print.
type JobConfig struct {
	Carton            string       `yaml:"carton"`
	Side              string       `yaml:"side"`
	StartingDirection string       `yaml:"starting_direction"`
	Alternating       *bool        `yaml:"alternating,omitempty"`
	Entry             []TaskConfig `yaml:"entry,omitempty"`
	Exit              []TaskConfig `yaml:"exit,omitempty"`
}

// TaskConfig is one entry or exit task. Exactly one field is set.
type TaskConfig struct {
	Gantry *GantryConfig `yaml:"gantry,omitempty"`
	Home   *HomeConfig   `yaml:"home,omitempty"`
}

type GantryConfig struct {
	MoveLeft  bool `yaml:"move_left"`
	MoveRight bool `yaml:"move_right"`
}

type HomeConfig struct {
	Engage bool `yaml:"engage"`
}

// CartonConfig declares a carton class beyond the built-in catalogue.
type CartonConfig struct {
	Name   string  `yaml:"name"`
	Depth  float64 `yaml:"depth"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Layers int     `yaml:"layers"`
	Family string  `yaml:"family"`
}

// RecoveryConfig controls the halted-program prompt.
type RecoveryConfig struct {
	// Source is console, tui or api.
	Source          string        `yaml:"source"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	DecisionTimeout time.Duration `yaml:"decision_timeout"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ShutdownConfig struct {
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// RecordingConfig controls telemetry sampling.
type RecordingConfig struct {
	Enabled bool `yaml:"enabled"`
	Every   int  `yaml:"every"`
	// Format is csv or sqlite.
	Format string `yaml:"format"`
	// Path is the CSV file or directory. Ignored for sqlite.
	Path string `yaml:"path,omitempty"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

const (
	TransportSim = "sim"

	RecoveryConsole = "console"
	RecoveryTUI     = "tui"
	RecoveryAPI     = "api"

	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Defaults returns a Config with the values used on the line.
func Defaults() *Config {
	alternating := true
	return &Config{
		Service: ServiceConfig{
			Name:     "portmark",
			LogLevel: "info",
		},
		Controller: ControllerConfig{
			Host:      "127.0.0.1",
			Port:      30004,
			Transport: TransportSim,
			Sim: SimConfig{
				CycleTime:  8 * time.Millisecond,
				PassCycles: 50,
				HomeCycles: 25,
			},
		},
		Job: JobConfig{
			Side:              "A",
			StartingDirection: "left_to_right",
			Alternating:       &alternating,
			Entry:             []TaskConfig{{Gantry: &GantryConfig{MoveLeft: true}}},
			Exit: []TaskConfig{
				{Home: &HomeConfig{Engage: true}},
				{Gantry: &GantryConfig{MoveRight: true}},
			},
		},
		Recovery: RecoveryConfig{
			Source:       RecoveryConsole,
			PollInterval: 10 * time.Millisecond,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: 30 * time.Second,
		},
		Recording: RecordingConfig{
			Enabled: false,
			Every:   3,
			Format:  FormatCSV,
		},
		State: StateConfig{
			Path: "./data/portmark.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
