// Package doctor checks a portmark configuration beyond what loading enforces.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mattjoyce/portmark/internal/config"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/storage"
	"github.com/mattjoyce/portmark/internal/task"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool              `json:"valid"`
	Errors   []Issue           `json:"errors,omitempty"`
	Warnings []Issue           `json:"warnings,omitempty"`
	Facts    map[string]string `json:"facts,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Facts: map[string]string{}}

	d.validateRecipes(r)
	d.validatePlan(r)
	d.validateState(r)
	d.validateAPIConfig(r)
	d.warnRecovery(r)
	d.warnSimulator(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateRecipes loads the register layout and reports its digest.
func (d *Doctor) validateRecipes(r *Result) {
	recipes, err := d.cfg.LoadRecipes()
	if err != nil {
		d.addError(r, "recipes", "controller.recipes", err.Error())
		return
	}
	for _, g := range append([]string{protocol.GroupState}, protocol.InputGroups...) {
		if _, err := recipes.Group(g); err != nil {
			d.addError(r, "recipes", "controller.recipes", err.Error())
		}
	}

	path := d.cfg.RecipesPath()
	if path == "" {
		r.Facts["recipes"] = "built-in"
		return
	}
	r.Facts["recipes"] = path
	digest, err := config.ComputeBlake3Hash(path)
	if err != nil {
		d.addError(r, "recipes", "controller.recipes", err.Error())
		return
	}
	r.Facts["recipes_blake3"] = digest
	if d.cfg.Controller.RecipesBlake3 == "" {
		d.addWarning(r, "recipes", "controller.recipes_blake3",
			fmt.Sprintf("recipe file is not pinned; set recipes_blake3: %s", digest))
	}
}

// validatePlan builds the configured job and summarises it.
func (d *Doctor) validatePlan(r *Result) {
	class, tasks, err := d.cfg.BuildPlan()
	if err != nil {
		d.addError(r, "plan", "job", err.Error())
		return
	}
	passes := 0
	for _, t := range tasks {
		if _, ok := t.(task.Control); ok {
			passes++
		}
	}
	r.Facts["carton"] = fmt.Sprintf("%s (%s, %d layers)", class.Name, class.Family, class.Layers)
	r.Facts["plan"] = fmt.Sprintf("%d tasks, %d print passes", len(tasks), passes)
	if passes == 0 {
		d.addWarning(r, "plan", "job.side", "plan contains no print passes")
	}
}

func (d *Doctor) validateState(r *Result) {
	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "state", "state.path", fmt.Sprintf("directory %s does not exist and will be created", dir))
	case err != nil:
		d.addError(r, "state", "state.path", err.Error())
	case !info.IsDir():
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not a directory", dir))
	}

	if err := storage.RequireLocal(d.cfg.State.Path, "database"); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	} else if fs, err := storage.FilesystemOf(d.cfg.State.Path); err == nil {
		r.Facts["state_filesystem"] = fs
	}

	if d.cfg.Recording.Enabled && d.cfg.Recording.Format == config.FormatCSV && d.cfg.Recording.Path != "" {
		if fi, err := os.Stat(d.cfg.Recording.Path); err == nil && !fi.IsDir() {
			d.addError(r, "recording", "recording.path", "recording file already exists and is never overwritten")
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", err.Error())
		return
	}
	if d.cfg.API.Auth.APIKey != "" {
		return
	}
	ip := net.ParseIP(host)
	if host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addError(r, "api", "api.auth.api_key", "API listens beyond loopback without authentication")
		return
	}
	d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
}

func (d *Doctor) warnRecovery(r *Result) {
	if d.cfg.Recovery.DecisionTimeout == 0 {
		d.addWarning(r, "recovery", "recovery.decision_timeout", "a halted controller waits for the operator indefinitely")
	}
	if d.cfg.Shutdown.DrainTimeout == 0 {
		d.addWarning(r, "shutdown", "shutdown.drain_timeout", "cancellation abandons outstanding handshakes")
	}
}

func (d *Doctor) warnSimulator(r *Result) {
	if d.cfg.Controller.Transport != config.TransportSim {
		return
	}
	r.Facts["transport"] = "simulated controller"
	if len(d.cfg.Controller.Sim.HaltAt) > 0 {
		d.addWarning(r, "controller", "controller.sim.halt_at",
			fmt.Sprintf("simulated program halts at cycles %v", d.cfg.Controller.Sim.HaltAt))
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references left unexpanded.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"controller.host":    d.cfg.Controller.Host,
		"controller.recipes": d.cfg.Controller.Recipes,
		"job.carton":         d.cfg.Job.Carton,
		"state.path":         d.cfg.State.Path,
		"recording.path":     d.cfg.Recording.Path,
		"api.auth.api_key":   d.cfg.API.Auth.APIKey,
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, m := range envVarRe.FindAllStringSubmatch(fields[name], -1) {
			d.addWarning(r, "env_vars", name, fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	keys := make([]string, 0, len(r.Facts))
	for k := range r.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  INFO  %s: %s\n", k, r.Facts[k])
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
