package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/api"
	"github.com/mattjoyce/portmark/internal/config"
	"github.com/mattjoyce/portmark/internal/dispatch"
	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/link"
	"github.com/mattjoyce/portmark/internal/link/sim"
	"github.com/mattjoyce/portmark/internal/lock"
	"github.com/mattjoyce/portmark/internal/log"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/queue"
	"github.com/mattjoyce/portmark/internal/recorder"
	"github.com/mattjoyce/portmark/internal/runlog"
	"github.com/mattjoyce/portmark/internal/storage"
	"github.com/mattjoyce/portmark/internal/task"
	"github.com/mattjoyce/portmark/internal/tui"
)

// closeTimeout bounds teardown once the run has ended.
const closeTimeout = 5 * time.Second

type runFlags struct {
	carton   string
	side     string
	recovery string
	record   bool
	api      bool
}

func newRunCmd(g *globals) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Print one carton: plan the job and drive the controller through it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJob(ctx, g, cfg)
		},
	}
	cmd.Flags().StringVar(&f.carton, "carton", "", "Override job.carton")
	cmd.Flags().StringVar(&f.side, "side", "", "Override job.side")
	cmd.Flags().StringVar(&f.recovery, "recovery", "", "Override recovery.source (console, tui, api)")
	cmd.Flags().BoolVar(&f.record, "record", false, "Enable telemetry recording")
	cmd.Flags().BoolVar(&f.api, "api", false, "Enable the HTTP API")
	return cmd
}

func (f runFlags) apply(cfg *config.Config) error {
	if f.carton != "" {
		cfg.Job.Carton = f.carton
	}
	if f.side != "" {
		cfg.Job.Side = f.side
	}
	switch f.recovery {
	case "":
	case config.RecoveryConsole, config.RecoveryTUI, config.RecoveryAPI:
		cfg.Recovery.Source = f.recovery
	default:
		return fmt.Errorf("unknown recovery source %q (want console, tui or api)", f.recovery)
	}
	if f.record {
		cfg.Recording.Enabled = true
	}
	if f.api {
		cfg.API.Enabled = true
	}
	if cfg.Recovery.Source == config.RecoveryAPI && !cfg.API.Enabled {
		return fmt.Errorf("recovery source %q requires the API (--api or api.enabled)", config.RecoveryAPI)
	}
	return nil
}

// runJob owns one run from lock to run-history row.
func runJob(ctx context.Context, g *globals, cfg *config.Config) (err error) {
	logFile, err := setupLogging(g, cfg)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger := log.WithComponent("main")
	logger.Info("portmark starting", "version", version, "config", cfg.SourcePath)

	stateDir := filepath.Dir(cfg.State.Path)
	ctrlLock, err := lock.Acquire(stateDir, cfg.Address())
	if err != nil {
		return err
	}
	defer ctrlLock.Release()
	logger.Info("acquired controller lock", "path", ctrlLock.Path())

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	class, tasks, err := cfg.BuildPlan()
	if err != nil {
		return err
	}
	recipes, err := cfg.LoadRecipes()
	if err != nil {
		return err
	}
	codec := protocol.NewCodec(recipes)

	runs := runlog.New(db)
	runID, err := runs.Start(ctx, runlog.StartRequest{
		Controller: cfg.Address(),
		Carton:     class.Name,
		Side:       cfg.Job.Side,
		Tasks:      len(tasks),
	})
	if err != nil {
		return err
	}
	runLogger := log.WithController(cfg.Address()).With("run_id", runID)
	printPlan(g.stdout, cfg, class.Name, tasks)

	// Teardown and the run-history row must happen even when ctx is cancelled.
	finishCtx := context.WithoutCancel(ctx)
	var res dispatch.Result
	defer func() {
		status := runStatus(err)
		if ferr := runs.Finish(finishCtx, runID, status, res.Cycles, err); ferr != nil {
			runLogger.Error("failed to record run result", "error", ferr)
		}
		runLogger.Info("run recorded", "status", status)
	}()

	rec, err := openRecorder(cfg, db, runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rec.Close(); cerr != nil {
			runLogger.Error("failed to close recorder", "error", cerr)
		}
	}()

	l, err := newLink(cfg, codec)
	if err != nil {
		return err
	}
	session := link.NewSession(l, codec, log.WithController(cfg.Address()).With("component", "link"))
	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("open controller session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(finishCtx, closeTimeout)
		defer cancel()
		if cerr := session.Close(closeCtx); cerr != nil {
			runLogger.Error("failed to close controller session", "error", cerr)
		}
	}()

	hub := events.NewHub(0)
	source, channel := decisionSource(g, cfg)
	engine := dispatch.New(session, queue.New(tasks...), dispatch.Options{
		Logger:          runLogger.With("component", "dispatch"),
		Events:          hub,
		Decisions:       source,
		Recorder:        rec,
		RecordEvery:     recordEvery(cfg),
		PollInterval:    cfg.Recovery.PollInterval,
		DecisionTimeout: cfg.Recovery.DecisionTimeout,
		RecoveryTimeout: cfg.Recovery.Timeout,
		DrainTimeout:    cfg.Shutdown.DrainTimeout,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		deps := api.Deps{
			Status: engine,
			Events: hub,
			Runs:   runs,
			Plan:   api.PlanResponse{Carton: class.Name, Side: cfg.Job.Side, Tasks: taskStrings(tasks)},
		}
		if cfg.Recovery.Source == config.RecoveryAPI {
			deps.Recovery = channel
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.Auth.APIKey}, deps, log.WithComponent("api"))
		apiCtx, stopAPI := context.WithCancel(finishCtx)
		defer func() {
			stopAPI()
			<-apiDone
		}()
		go func() { apiDone <- srv.Start(apiCtx, nil) }()
	} else {
		close(apiDone)
	}

	if cfg.Recovery.Source == config.RecoveryTUI {
		res, err = runWithConsole(runCtx, cancelRun, engine, hub, channel)
	} else {
		res, err = engine.Run(runCtx)
	}

	printSummary(g.stdout, res, err)
	return err
}

// runWithConsole runs the engine in the background while the console owns the
// terminal. Quitting the console cancels the run, which then drains.
func runWithConsole(ctx context.Context, cancel context.CancelFunc, engine *dispatch.Engine, hub *events.Hub, ch *operator.Channel) (dispatch.Result, error) {
	type outcome struct {
		res dispatch.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.Run(ctx)
		done <- outcome{res, err}
	}()

	m := tui.New(ctx, tui.HubFeed{Hub: hub}, ch, tui.Options{QuitOnFinish: true})
	if err := tui.Run(ctx, m); err != nil {
		log.WithComponent("main").Error("console stopped", "error", err)
	}
	cancel()
	o := <-done
	return o.res, o.err
}

func setupLogging(g *globals, cfg *config.Config) (*os.File, error) {
	if cfg.Recovery.Source != config.RecoveryTUI {
		log.SetupWriter(g.stderr, cfg.Service.LogLevel)
		return nil, nil
	}
	// The console owns the terminal; logs go next to the state database.
	path := filepath.Join(filepath.Dir(cfg.State.Path), "portmark.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetupWriter(f, cfg.Service.LogLevel)
	return f, nil
}

func newLink(cfg *config.Config, codec *protocol.Codec) (link.Link, error) {
	switch cfg.Controller.Transport {
	case config.TransportSim:
		s := cfg.Controller.Sim
		opts := []sim.Option{sim.WithCycleTime(s.CycleTime)}
		if s.PassCycles > 0 {
			opts = append(opts, sim.WithPassCycles(s.PassCycles))
		}
		if s.HomeCycles > 0 {
			opts = append(opts, sim.WithHomeCycles(s.HomeCycles))
		}
		if len(s.HaltAt) > 0 {
			opts = append(opts, sim.WithHaltAt(s.HaltAt...))
		}
		return sim.New(codec, opts...), nil
	default:
		return nil, fmt.Errorf("controller transport %q is not available", cfg.Controller.Transport)
	}
}

// decisionSource returns what the engine asks when the program halts. The
// channel is non-nil for sources fed from another goroutine.
func decisionSource(g *globals, cfg *config.Config) (dispatch.DecisionSource, *operator.Channel) {
	switch cfg.Recovery.Source {
	case config.RecoveryTUI, config.RecoveryAPI:
		ch := operator.NewChannel()
		return ch, ch
	default:
		return operator.NewConsole(g.stdin, g.stderr), nil
	}
}

func openRecorder(cfg *config.Config, db *sql.DB, runID string) (recorder.Recorder, error) {
	if !cfg.Recording.Enabled {
		return recorder.Discard, nil
	}
	if cfg.Recording.Format == config.FormatSQLite {
		return recorder.NewSQLite(db, runID), nil
	}

	path := cfg.Recording.Path
	if path == "" {
		path = recorder.DefaultCSVName(filepath.Join(filepath.Dir(cfg.State.Path), "recordings"))
	} else if fi, err := os.Stat(path); (err == nil && fi.IsDir()) || strings.HasSuffix(path, string(filepath.Separator)) {
		path = recorder.DefaultCSVName(path)
	}
	r, err := recorder.NewCSV(path)
	if err != nil {
		return nil, err
	}
	log.WithRun(runID).Info("recording telemetry", "path", r.Path(), "every", cfg.Recording.Every)
	return r, nil
}

func recordEvery(cfg *config.Config) int {
	if !cfg.Recording.Enabled {
		return 0
	}
	return cfg.Recording.Every
}

func runStatus(err error) runlog.Status {
	switch {
	case err == nil:
		return runlog.StatusSucceeded
	case errors.Is(err, context.Canceled):
		return runlog.StatusCancelled
	default:
		return runlog.StatusFailed
	}
}

func taskStrings(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.String()
	}
	return out
}

func printPlan(w io.Writer, cfg *config.Config, carton string, tasks []task.Task) {
	if cfg.Recovery.Source == config.RecoveryTUI {
		return
	}
	fmt.Fprintf(w, "TASK QUEUE %s side %s\n", carton, cfg.Job.Side)
	for i, t := range tasks {
		fmt.Fprintf(w, "  %2d  %s\n", i+1, t)
	}
}

func printSummary(w io.Writer, res dispatch.Result, err error) {
	mean := time.Duration(0)
	if res.Cycles > 0 {
		mean = res.Elapsed / time.Duration(res.Cycles)
	}
	status := "complete"
	if err != nil {
		status = "stopped: " + err.Error()
	}
	fmt.Fprintf(w, "run %s\n  dispatched %d, remaining %d, cycles %d, elapsed %s, mean cycle %s\n",
		status, res.Dispatched, res.Remaining, res.Cycles,
		res.Elapsed.Round(time.Millisecond), mean.Round(time.Microsecond))
}
