package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/link"
	"github.com/mattjoyce/portmark/internal/log"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/queue"
	"github.com/mattjoyce/portmark/internal/recorder"
	"github.com/mattjoyce/portmark/internal/task"
)

var (
	// ErrConnectionLost is fatal. Nothing is retried.
	ErrConnectionLost = link.ErrConnectionLost

	// ErrRecoveryTimeout means the operator or the controller did not
	// complete recovery within the configured bound.
	ErrRecoveryTimeout = errors.New("recovery timed out")

	// ErrDrainTimeout means outstanding commands were not acknowledged
	// before the drain deadline.
	ErrDrainTimeout = errors.New("drain timed out")

	// ErrNoDecisionSource is returned when the controller halts and nobody
	// can be asked what to do.
	ErrNoDecisionSource = errors.New("controller halted and no decision source configured")
)

const defaultPollInterval = 10 * time.Millisecond

// Controller is the register-level surface the engine drives.
// link.Session implements it.
type Controller interface {
	Receive(ctx context.Context) (protocol.Snapshot, error)
	SendGantry(ctx context.Context, g task.Gantry) error
	SendHome(ctx context.Context, engage bool) error
	SendControl(ctx context.Context, c task.Control) error
	ClearControl(ctx context.Context) error
	SendInternal(ctx context.Context, bits protocol.InternalBits) error
}

// DecisionSource answers a halted controller.
type DecisionSource interface {
	Decide(ctx context.Context) (operator.Decision, error)
}

// AckState tracks the two foreground command families. A false flag means a
// command of that family is outstanding.
type AckState struct {
	Control bool `json:"control"`
	Home    bool `json:"home"`
}

// Idle reports whether no foreground command is outstanding.
func (a AckState) Idle() bool { return a.Control && a.Home }

// Options configures an Engine. Zero values are usable.
type Options struct {
	Logger    *slog.Logger
	Events    events.Publisher
	Decisions DecisionSource

	Recorder recorder.Recorder
	// RecordEvery samples every Nth cycle. Zero disables recording.
	RecordEvery int

	// PollInterval spaces receives while waiting for a recovered program.
	PollInterval time.Duration
	// DecisionTimeout bounds the operator prompt. Zero waits forever.
	DecisionTimeout time.Duration
	// RecoveryTimeout bounds the wait for the program to run again after a
	// decision. Zero waits forever.
	RecoveryTimeout time.Duration
	// DrainTimeout bounds acknowledgment of outstanding commands after
	// cancellation. Zero stops without draining.
	DrainTimeout time.Duration
}

// Result summarises a finished run.
type Result struct {
	Cycles     int           `json:"cycles"`
	Dispatched int           `json:"dispatched"`
	Remaining  int           `json:"remaining"`
	Drained    bool          `json:"drained"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Engine drives one controller connection. Only Status and Pending may be
// called from other goroutines.
type Engine struct {
	ctrl   Controller
	queue  *queue.Queue
	opts   Options
	logger *slog.Logger
	events events.Publisher
	rec    recorder.Recorder

	ack        AckState
	observed   Observed
	cycle      int
	dispatched int
	draining   bool

	mu      sync.Mutex
	status  Status
	pending []task.Task
}

// New creates an engine over q. The engine owns q from here on.
func New(ctrl Controller, q *queue.Queue, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("dispatch")
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Recorder == nil || opts.RecordEvery <= 0 {
		opts.Recorder = recorder.Discard
		opts.RecordEvery = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	e := &Engine{
		ctrl:   ctrl,
		queue:  q,
		opts:   opts,
		logger: opts.Logger,
		events: opts.Events,
		rec:    opts.Recorder,
		ack:    AckState{Control: true, Home: true},
	}
	e.publishStatus(false)
	return e
}

// Acks returns the current acknowledgment flags.
func (e *Engine) Acks() AckState { return e.ack }

// Run receives and steps until the queue is drained and acknowledged, the
// connection is lost, or ctx is cancelled and draining finishes. A drained
// cancellation returns ctx.Err().
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	e.logger.Info("dispatch started", "tasks", e.queue.Len())
	e.events.Publish(events.RunStarted, map[string]any{"tasks": e.queue.Len()})

	res, err := e.run(ctx)
	res.Elapsed = time.Since(start)

	attrs := []any{"cycles", res.Cycles, "dispatched", res.Dispatched, "remaining", res.Remaining, "elapsed", res.Elapsed.String()}
	if err != nil {
		e.logger.Error("dispatch stopped", append(attrs, "error", err)...)
	} else {
		e.logger.Info("dispatch finished", attrs...)
	}
	finished := map[string]any{"result": res}
	if err != nil {
		finished["error"] = err.Error()
	}
	e.events.Publish(events.RunFinished, finished)
	return res, err
}

func (e *Engine) run(ctx context.Context) (Result, error) {
	ioCtx := ctx
	for {
		if !e.draining && ctx.Err() != nil {
			if e.opts.DrainTimeout <= 0 || e.ack.Idle() {
				return e.result(false), ctx.Err()
			}
			var cancel context.CancelFunc
			ioCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), e.opts.DrainTimeout)
			defer cancel()
			e.beginDrain()
		}

		snap, err := e.ctrl.Receive(ioCtx)
		if err != nil {
			switch {
			case !e.draining && ctx.Err() != nil:
				continue
			case e.draining && ioCtx.Err() != nil:
				return e.result(false), fmt.Errorf("%w after %s: control ack %t, home ack %t",
					ErrDrainTimeout, e.opts.DrainTimeout, e.ack.Control, e.ack.Home)
			}
			return e.result(false), connectionLost(err)
		}

		done, err := e.Step(ioCtx, snap)
		if err != nil {
			if e.draining && errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrDrainTimeout, err)
			}
			return e.result(false), err
		}
		if done {
			if e.draining {
				return e.result(true), ctx.Err()
			}
			return e.result(false), nil
		}
	}
}

// Step applies one received snapshot. It returns true when the run is
// complete: the queue is empty and nothing is outstanding, or the engine is
// draining and nothing is outstanding.
func (e *Engine) Step(ctx context.Context, snap protocol.Snapshot) (bool, error) {
	e.cycle++
	e.ingest(snap)

	if !snap.ProgramRunning {
		if e.draining {
			return false, fmt.Errorf("controller halted while draining: %w", context.Canceled)
		}
		recovered, ok, err := e.recoverProgram(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			e.publishStatus(true)
			return false, nil
		}
		snap = recovered
	}

	e.record(snap)

	if e.ack.Idle() && (e.queue.IsEmpty() || e.draining) {
		e.publishStatus(false)
		return true, nil
	}

	front, hasFront := e.queue.Peek()
	if e.draining {
		hasFront = false
	}
	err := e.dispatch(ctx, snap, front, hasFront)
	e.publishStatus(false)
	return false, err
}

func (e *Engine) dispatch(ctx context.Context, snap protocol.Snapshot, front task.Task, hasFront bool) error {
	if hasFront {
		switch t := front.(type) {
		case task.Gantry:
			if err := e.ctrl.SendGantry(ctx, t); err != nil {
				return connectionLost(err)
			}
			return e.pop(t)

		case task.Home:
			if e.ack.Control {
				if err := e.ctrl.SendHome(ctx, t.Engage); err != nil {
					return connectionLost(err)
				}
				e.ack.Home = false
				return e.pop(t)
			}

		case task.Control:
			if e.ack.Idle() && snap.CurrentTask == protocol.NoTask && !snap.TaskActive {
				if err := e.ctrl.SendControl(ctx, t); err != nil {
					return connectionLost(err)
				}
				e.ack.Control = false
				return e.pop(t)
			}
		}
	}

	switch {
	case !e.ack.Home && snap.Homed:
		if err := e.ctrl.SendHome(ctx, false); err != nil {
			return connectionLost(err)
		}
		e.ack.Home = true
		e.acked(task.KindHome)

	case !e.ack.Control && snap.CurrentTask != protocol.NoTask && !snap.TaskActive && snap.TaskDone:
		if err := e.ctrl.ClearControl(ctx); err != nil {
			return connectionLost(err)
		}
		e.ack.Control = true
		e.acked(task.KindControl)
	}
	return nil
}

func (e *Engine) pop(sent task.Task) error {
	t, err := e.queue.Pop()
	if err != nil {
		return fmt.Errorf("pop after sending %s: %w", sent, err)
	}
	e.dispatched++
	e.logger.Info("task sent", "kind", t.Kind(), "task", t.String(), "remaining", e.queue.Len())
	e.events.Publish(events.TaskSent, map[string]any{
		"kind":      t.Kind(),
		"task":      t.String(),
		"remaining": e.queue.Len(),
	})
	return nil
}

func (e *Engine) acked(kind task.Kind) {
	e.logger.Info("task acknowledged", "kind", kind)
	e.events.Publish(events.TaskAcked, map[string]any{"kind": kind})
}

func (e *Engine) ingest(snap protocol.Snapshot) {
	cs := Ingest(e.observed, snap)
	e.observed = cs.Next
	if len(cs.Changes) == 0 {
		return
	}
	for _, c := range cs.Changes {
		from, to := c.From, c.To
		if c.Field == "current_task" {
			to = protocol.TaskName(cs.Next.CurrentTask)
			if c.From != nil {
				from = protocol.TaskName(c.From.(int))
			}
		}
		e.logger.Info("status changed", "field", c.Field, "from", from, "to", to, "cycle", e.cycle)
	}
	e.events.Publish(events.StatusChanged, map[string]any{"cycle": e.cycle, "changes": cs.Changes})
}

// record samples the zero-based cycles 0, N, 2N...
func (e *Engine) record(snap protocol.Snapshot) {
	pc := e.cycle - 1
	if e.opts.RecordEvery == 0 || pc%e.opts.RecordEvery != 0 {
		return
	}
	err := e.rec.Record(recorder.Sample{Cycle: pc, Telemetry: snap.Telemetry, Printing: snap.Printing})
	if err != nil {
		e.logger.Warn("telemetry sample dropped", "cycle", pc, "error", err)
	}
}

func (e *Engine) beginDrain() {
	e.draining = true
	e.logger.Info("draining", "control_ack", e.ack.Control, "home_ack", e.ack.Home, "queued", e.queue.Len())
	e.events.Publish(events.Draining, e.ack)
	e.publishStatus(false)
}

func (e *Engine) result(drained bool) Result {
	return Result{
		Cycles:     e.cycle,
		Dispatched: e.dispatched,
		Remaining:  e.queue.Len(),
		Drained:    drained,
	}
}

func connectionLost(err error) error {
	if errors.Is(err, ErrConnectionLost) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}
