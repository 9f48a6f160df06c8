package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/portmark/internal/plan"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/task"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a config file. A .env file next to it is loaded first; variables
// already set in the environment win. ${VAR} references are then expanded,
// the YAML is decoded over Defaults and the result validated.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "portmark.yaml")
	}

	if err := loadDotEnv(filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse([]byte(interpolateEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes YAML over Defaults and validates the result. It does not
// expand environment variables.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)

	if cfg.Controller.Transport == "" {
		cfg.Controller.Transport = defaults.Controller.Transport
	}
	if cfg.Controller.Port == 0 {
		cfg.Controller.Port = defaults.Controller.Port
	}
	if cfg.Job.Side == "" {
		cfg.Job.Side = defaults.Job.Side
	}
	if cfg.Job.StartingDirection == "" {
		cfg.Job.StartingDirection = defaults.Job.StartingDirection
	}
	if cfg.Job.Alternating == nil {
		cfg.Job.Alternating = defaults.Job.Alternating
	}

	if cfg.Recovery.Source == "" {
		cfg.Recovery.Source = defaults.Recovery.Source
	}
	if cfg.Recovery.PollInterval == 0 {
		cfg.Recovery.PollInterval = defaults.Recovery.PollInterval
	}
	if cfg.Recording.Every == 0 {
		cfg.Recording.Every = defaults.Recording.Every
	}
	if cfg.Recording.Format == "" {
		cfg.Recording.Format = defaults.Recording.Format
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Controller.Host == "" {
		return fmt.Errorf("controller.host is required")
	}
	if err := unresolved("controller.host", cfg.Controller.Host); err != nil {
		return err
	}
	if cfg.Controller.Port <= 0 || cfg.Controller.Port > 65535 {
		return fmt.Errorf("controller.port must be 1-65535 (got %d)", cfg.Controller.Port)
	}
	if cfg.Controller.Transport != TransportSim {
		return fmt.Errorf("controller.transport %q is not available (supported: %s)", cfg.Controller.Transport, TransportSim)
	}
	if sim := cfg.Controller.Sim; sim.PassCycles < 0 || sim.HomeCycles < 0 || sim.CycleTime < 0 {
		return fmt.Errorf("controller.sim values must not be negative")
	}
	if cfg.Controller.RecipesBlake3 != "" && cfg.Controller.Recipes == "" {
		return fmt.Errorf("controller.recipes_blake3 requires controller.recipes")
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	if cfg.Job.Carton == "" {
		return fmt.Errorf("job.carton is required (one of: %s)", strings.Join(catalog.Names(), ", "))
	}
	if _, err := catalog.Lookup(cfg.Job.Carton); err != nil {
		return fmt.Errorf("job.carton: %w", err)
	}
	if _, err := plan.ParseSide(cfg.Job.Side); err != nil {
		return fmt.Errorf("job.side: %w", err)
	}
	if _, err := task.ParseDirection(cfg.Job.StartingDirection); err != nil {
		return fmt.Errorf("job.starting_direction: %w", err)
	}
	if _, err := tasksFromConfig("job.entry", cfg.Job.Entry); err != nil {
		return err
	}
	if _, err := tasksFromConfig("job.exit", cfg.Job.Exit); err != nil {
		return err
	}

	switch cfg.Recovery.Source {
	case RecoveryConsole, RecoveryTUI:
	case RecoveryAPI:
		if !cfg.API.Enabled {
			return fmt.Errorf("recovery.source %q requires api.enabled", RecoveryAPI)
		}
	default:
		return fmt.Errorf("recovery.source must be one of: console, tui, api (got %q)", cfg.Recovery.Source)
	}
	if cfg.Recovery.PollInterval < 0 || cfg.Recovery.DecisionTimeout < 0 || cfg.Recovery.Timeout < 0 {
		return fmt.Errorf("recovery durations must not be negative")
	}
	if cfg.Shutdown.DrainTimeout < 0 {
		return fmt.Errorf("shutdown.drain_timeout must not be negative")
	}

	if cfg.Recording.Every < 1 {
		return fmt.Errorf("recording.every must be positive (got %d)", cfg.Recording.Every)
	}
	if cfg.Recording.Format != FormatCSV && cfg.Recording.Format != FormatSQLite {
		return fmt.Errorf("recording.format must be csv or sqlite (got %q)", cfg.Recording.Format)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen: %w", err)
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}
	return nil
}

// Address is the controller's host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Controller.Host, strconv.Itoa(c.Controller.Port))
}

// Catalog returns the built-in carton classes plus those declared in config.
func (c *Config) Catalog() (*plan.Catalog, error) {
	extra := make([]plan.CartonClass, 0, len(c.Cartons))
	for _, cc := range c.Cartons {
		extra = append(extra, plan.CartonClass{
			Name:   cc.Name,
			Depth:  cc.Depth,
			Width:  cc.Width,
			Height: cc.Height,
			Layers: cc.Layers,
			Family: plan.Family(cc.Family),
		})
	}
	catalog, err := plan.NewCatalog(extra...)
	if err != nil {
		return nil, fmt.Errorf("cartons: %w", err)
	}
	return catalog, nil
}

// PlanOptions converts the job section into plan options.
func (c *Config) PlanOptions() (plan.Options, error) {
	dir, err := task.ParseDirection(c.Job.StartingDirection)
	if err != nil {
		return plan.Options{}, fmt.Errorf("job.starting_direction: %w", err)
	}
	entry, err := tasksFromConfig("job.entry", c.Job.Entry)
	if err != nil {
		return plan.Options{}, err
	}
	exit, err := tasksFromConfig("job.exit", c.Job.Exit)
	if err != nil {
		return plan.Options{}, err
	}
	return plan.Options{
		Starting:    dir,
		Alternating: c.Job.Alternating == nil || *c.Job.Alternating,
		Entry:       entry,
		Exit:        exit,
	}, nil
}

// BuildPlan resolves the job's carton class and side and builds its tasks.
func (c *Config) BuildPlan() (plan.CartonClass, []task.Task, error) {
	catalog, err := c.Catalog()
	if err != nil {
		return plan.CartonClass{}, nil, err
	}
	class, err := catalog.Lookup(c.Job.Carton)
	if err != nil {
		return plan.CartonClass{}, nil, err
	}
	side, err := plan.ParseSide(c.Job.Side)
	if err != nil {
		return plan.CartonClass{}, nil, err
	}
	opts, err := c.PlanOptions()
	if err != nil {
		return plan.CartonClass{}, nil, err
	}
	tasks, err := plan.Build(class, side, opts)
	if err != nil {
		return plan.CartonClass{}, nil, err
	}
	return class, tasks, nil
}

// LoadRecipes returns the register layout, verifying the BLAKE3 pin when one
// is configured. A relative recipe path is resolved against the config file.
func (c *Config) LoadRecipes() (*protocol.Recipes, error) {
	if c.Controller.Recipes == "" {
		return protocol.DefaultRecipes(), nil
	}
	path := c.RecipesPath()
	if c.Controller.RecipesBlake3 != "" {
		if err := VerifyFileHash(path, c.Controller.RecipesBlake3); err != nil {
			return nil, fmt.Errorf("controller.recipes: %w", err)
		}
	}
	r, err := protocol.LoadRecipes(path)
	if err != nil {
		return nil, fmt.Errorf("controller.recipes: %w: %v", plan.ErrInvalidConfiguration, err)
	}
	return r, nil
}

// RecipesPath is the absolute recipe file path, or "" for the built-in layout.
func (c *Config) RecipesPath() string {
	p := c.Controller.Recipes
	if p == "" || filepath.IsAbs(p) || c.SourcePath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.SourcePath), p)
}

func tasksFromConfig(field string, in []TaskConfig) ([]task.Task, error) {
	out := make([]task.Task, 0, len(in))
	for i, tc := range in {
		switch {
		case tc.Gantry != nil && tc.Home != nil:
			return nil, fmt.Errorf("%s[%d]: set exactly one of gantry, home", field, i)
		case tc.Gantry != nil:
			if tc.Gantry.MoveLeft && tc.Gantry.MoveRight {
				return nil, fmt.Errorf("%s[%d].gantry: move_left and move_right are exclusive", field, i)
			}
			out = append(out, task.Gantry{MoveLeft: tc.Gantry.MoveLeft, MoveRight: tc.Gantry.MoveRight})
		case tc.Home != nil:
			if !tc.Home.Engage {
				return nil, fmt.Errorf("%s[%d].home: engage must be true; release is sent when homing completes", field, i)
			}
			out = append(out, task.Home{Engage: true})
		default:
			return nil, fmt.Errorf("%s[%d]: set exactly one of gantry, home", field, i)
		}
	}
	return out, nil
}
