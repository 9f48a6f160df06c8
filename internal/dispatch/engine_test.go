package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattjoyce/portmark/internal/log"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/queue"
	"github.com/mattjoyce/portmark/internal/recorder"
	"github.com/mattjoyce/portmark/internal/task"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	goleak.VerifyTestMain(m)
}

// fakeController records sends and serves snapshots from receive.
type fakeController struct {
	mu      sync.Mutex
	calls   []string
	receive func(ctx context.Context, n int) (protocol.Snapshot, error)
	n       int
	sendErr error
}

func (f *fakeController) Receive(ctx context.Context) (protocol.Snapshot, error) {
	f.mu.Lock()
	f.n++
	n := f.n
	fn := f.receive
	f.mu.Unlock()
	if fn == nil {
		return protocol.Snapshot{}, errors.New("no script")
	}
	return fn(ctx, n)
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeController) SendGantry(_ context.Context, g task.Gantry) error {
	return f.record(g.String())
}

func (f *fakeController) SendHome(_ context.Context, engage bool) error {
	return f.record(fmt.Sprintf("home:%t", engage))
}

func (f *fakeController) SendControl(_ context.Context, c task.Control) error {
	if err := f.record("pose"); err != nil {
		return err
	}
	return f.record("direction:" + c.Direction.String())
}

func (f *fakeController) ClearControl(context.Context) error {
	return f.record("control:clear")
}

func (f *fakeController) SendInternal(_ context.Context, b protocol.InternalBits) error {
	switch {
	case b.Resume:
		return f.record("internal:resume")
	case b.Restart:
		return f.record("internal:restart")
	default:
		return f.record("internal:clear")
	}
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// script serves snaps in order, then repeats the last one.
func script(snaps ...protocol.Snapshot) func(context.Context, int) (protocol.Snapshot, error) {
	return func(ctx context.Context, n int) (protocol.Snapshot, error) {
		if err := ctx.Err(); err != nil {
			return protocol.Snapshot{}, err
		}
		if n > len(snaps) {
			n = len(snaps)
		}
		return snaps[n-1], nil
	}
}

type fixedDecision struct {
	d     operator.Decision
	err   error
	calls int
}

func (s *fixedDecision) Decide(ctx context.Context) (operator.Decision, error) {
	s.calls++
	return s.d, s.err
}

type blockingDecision struct{}

func (blockingDecision) Decide(ctx context.Context) (operator.Decision, error) {
	<-ctx.Done()
	return operator.Invalid, ctx.Err()
}

type memRecorder struct{ samples []recorder.Sample }

func (r *memRecorder) Record(s recorder.Sample) error { r.samples = append(r.samples, s); return nil }
func (r *memRecorder) Flush() error                   { return nil }
func (r *memRecorder) Close() error                   { return nil }

var (
	idle    = protocol.Snapshot{ProgramRunning: true}
	active  = protocol.Snapshot{ProgramRunning: true, CurrentTask: 1, TaskActive: true, Printing: true}
	done    = protocol.Snapshot{ProgramRunning: true, CurrentTask: 1, TaskDone: true}
	homed   = protocol.Snapshot{ProgramRunning: true, Homed: true}
	halted  = protocol.Snapshot{}
	control = task.Control{Direction: task.LeftToRight}
)

func newEngine(f *fakeController, opts Options, tasks ...task.Task) *Engine {
	return New(f, queue.New(tasks...), opts)
}

func steps(t *testing.T, e *Engine, snaps ...protocol.Snapshot) bool {
	t.Helper()
	var finished bool
	for _, s := range snaps {
		var err error
		finished, err = e.Step(context.Background(), s)
		require.NoError(t, err)
	}
	return finished
}

func TestEndToEndHandshake(t *testing.T) {
	f := &fakeController{}
	e := newEngine(f, Options{},
		task.Gantry{MoveLeft: true},
		task.Control{Direction: task.LeftToRight, Pose: task.Pose{}},
		task.Home{Engage: true},
	)

	assert.False(t, steps(t, e, idle, idle, active, done))
	assert.Equal(t, AckState{Control: true, Home: true}, e.Acks())

	assert.False(t, steps(t, e, done))
	assert.Equal(t, AckState{Control: true, Home: false}, e.Acks())

	assert.False(t, steps(t, e, homed))
	assert.True(t, steps(t, e, idle))

	assert.Equal(t, []string{
		"gantry(left=true, right=false)",
		"pose", "direction:left_to_right",
		"control:clear",
		"home:true",
		"home:false",
	}, f.Calls())
	assert.Equal(t, 0, e.queue.Len())
	assert.Equal(t, AckState{Control: true, Home: true}, e.Acks())
}

func TestControlWaitsForIdleController(t *testing.T) {
	f := &fakeController{}
	e := newEngine(f, Options{}, control)

	busy := protocol.Snapshot{ProgramRunning: true, CurrentTask: 2}
	steps(t, e, busy, protocol.Snapshot{ProgramRunning: true, TaskActive: true})
	assert.Empty(t, f.Calls())
	assert.Equal(t, 1, e.queue.Len())

	steps(t, e, idle)
	assert.Equal(t, []string{"pose", "direction:left_to_right"}, f.Calls())
	assert.False(t, e.Acks().Control)
}

func TestAckFamiliesAreIsolated(t *testing.T) {
	t.Run("homed does not acknowledge control", func(t *testing.T) {
		f := &fakeController{}
		e := newEngine(f, Options{}, control, task.Home{Engage: true})

		steps(t, e, idle, active, homed)
		assert.Equal(t, AckState{Control: false, Home: true}, e.Acks())
		assert.Equal(t, []string{"pose", "direction:left_to_right"}, f.Calls())
	})

	t.Run("pass done does not acknowledge home", func(t *testing.T) {
		f := &fakeController{}
		e := newEngine(f, Options{}, task.Home{Engage: true}, control)

		steps(t, e, idle, done)
		assert.Equal(t, AckState{Control: true, Home: false}, e.Acks())
		assert.Equal(t, []string{"home:true"}, f.Calls())

		steps(t, e, homed)
		assert.Equal(t, AckState{Control: true, Home: true}, e.Acks())
	})

	t.Run("home waits for control ack", func(t *testing.T) {
		f := &fakeController{}
		e := newEngine(f, Options{}, control, task.Home{Engage: true})

		steps(t, e, idle, active, active)
		assert.Equal(t, 1, e.queue.Len())
		assert.Equal(t, []string{"pose", "direction:left_to_right"}, f.Calls())
	})

	t.Run("gantry is never gated", func(t *testing.T) {
		f := &fakeController{}
		e := newEngine(f, Options{}, control, task.Gantry{MoveRight: true})

		steps(t, e, idle, active)
		assert.Equal(t, []string{"pose", "direction:left_to_right", "gantry(left=false, right=true)"}, f.Calls())
		assert.False(t, e.Acks().Control)
	})
}

func TestHaltedControllerSendsOnlyRecoveryBits(t *testing.T) {
	f := &fakeController{}
	src := &fixedDecision{d: operator.Invalid}
	e := newEngine(f, Options{Decisions: src}, task.Gantry{MoveLeft: true}, control)

	steps(t, e, halted, halted)
	assert.Empty(t, f.Calls())
	assert.Equal(t, 2, e.queue.Len())
	assert.Equal(t, 2, src.calls)
	assert.True(t, e.Status().Halted)

	src.d = operator.Resume
	f.receive = script(halted, idle)
	steps(t, e, halted)
	assert.Equal(t, []string{"internal:resume", "internal:clear", "gantry(left=true, right=false)"}, f.Calls())
	assert.Equal(t, 1, e.queue.Len())
	assert.False(t, e.Status().Halted)
}

func TestRecoveryDecisions(t *testing.T) {
	tests := []struct {
		decision operator.Decision
		want     []string
		acks     AckState
	}{
		{operator.Resume, []string{"internal:resume", "internal:clear"}, AckState{Control: true, Home: true}},
		{operator.Restart, []string{"internal:restart", "internal:clear"}, AckState{Control: true, Home: true}},
		{operator.Home, []string{"home:true", "internal:restart", "internal:clear"}, AckState{Control: true, Home: false}},
	}

	for _, tt := range tests {
		t.Run(tt.decision.String(), func(t *testing.T) {
			f := &fakeController{receive: script(halted, halted, idle)}
			e := newEngine(f, Options{Decisions: &fixedDecision{d: tt.decision}, PollInterval: time.Millisecond})

			steps(t, e, halted)
			assert.Equal(t, tt.want, f.Calls())
			assert.Equal(t, tt.acks, e.Acks())
		})
	}
}

func TestHomeRecoveryIsAcknowledgedByHomed(t *testing.T) {
	f := &fakeController{receive: script(idle)}
	e := newEngine(f, Options{Decisions: &fixedDecision{d: operator.Home}})

	assert.False(t, steps(t, e, halted))
	assert.False(t, steps(t, e, homed))
	assert.True(t, steps(t, e, idle))
	assert.Equal(t, []string{"home:true", "internal:restart", "internal:clear", "home:false"}, f.Calls())
}

func TestHomeTaskNeedsOnlyControlAck(t *testing.T) {
	f := &fakeController{receive: script(idle)}
	e := newEngine(f, Options{Decisions: &fixedDecision{d: operator.Home}}, task.Home{Engage: true})

	assert.False(t, steps(t, e, halted))
	assert.Equal(t, []string{"home:true", "internal:restart", "internal:clear", "home:true"}, f.Calls())
	assert.Equal(t, 0, e.queue.Len())
	assert.Equal(t, AckState{Control: true, Home: false}, e.Acks())

	assert.False(t, steps(t, e, homed))
	assert.True(t, steps(t, e, idle))
	assert.Equal(t, AckState{Control: true, Home: true}, e.Acks())
}

func TestRecoveryFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no decision source", func(t *testing.T) {
		e := newEngine(&fakeController{}, Options{})
		_, err := e.Step(ctx, halted)
		assert.ErrorIs(t, err, ErrNoDecisionSource)
	})

	t.Run("decision timeout", func(t *testing.T) {
		e := newEngine(&fakeController{}, Options{Decisions: blockingDecision{}, DecisionTimeout: 10 * time.Millisecond})
		_, err := e.Step(ctx, halted)
		assert.ErrorIs(t, err, ErrRecoveryTimeout)
	})

	t.Run("program never restarts", func(t *testing.T) {
		f := &fakeController{receive: script(halted)}
		e := newEngine(f, Options{
			Decisions:       &fixedDecision{d: operator.Restart},
			PollInterval:    time.Millisecond,
			RecoveryTimeout: 20 * time.Millisecond,
		})
		_, err := e.Step(ctx, halted)
		assert.ErrorIs(t, err, ErrRecoveryTimeout)
	})

	t.Run("link lost while polling", func(t *testing.T) {
		f := &fakeController{receive: func(context.Context, int) (protocol.Snapshot, error) {
			return protocol.Snapshot{}, errors.New("socket closed")
		}}
		e := newEngine(f, Options{Decisions: &fixedDecision{d: operator.Resume}})
		_, err := e.Step(ctx, halted)
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("decision source error", func(t *testing.T) {
		e := newEngine(&fakeController{}, Options{Decisions: &fixedDecision{err: operator.ErrClosed}})
		_, err := e.Step(ctx, halted)
		assert.ErrorIs(t, err, operator.ErrClosed)
	})
}

func TestSendFailureKeepsTask(t *testing.T) {
	f := &fakeController{sendErr: errors.New("broken pipe")}
	e := newEngine(f, Options{}, control)

	_, err := e.Step(context.Background(), idle)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, 1, e.queue.Len())
	assert.True(t, e.Acks().Control)
}

func TestRecordsEveryNthCycle(t *testing.T) {
	rec := &memRecorder{}
	e := newEngine(&fakeController{}, Options{Recorder: rec, RecordEvery: 3}, control)

	snap := active
	snap.Telemetry.TCPPose[0] = 0.25
	steps(t, e, snap, snap, snap, snap, snap, snap, snap)

	require.Len(t, rec.samples, 3)
	assert.Equal(t, 0, rec.samples[0].Cycle)
	assert.Equal(t, 3, rec.samples[1].Cycle)
	assert.Equal(t, 6, rec.samples[2].Cycle)
	assert.Equal(t, 0.25, rec.samples[0].Telemetry.TCPPose[0])
	assert.True(t, rec.samples[0].Printing)
}

func TestRunSucceeds(t *testing.T) {
	f := &fakeController{receive: script(idle, idle, active, done, idle)}
	e := newEngine(f, Options{}, task.Gantry{MoveLeft: true}, control)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dispatched)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 5, res.Cycles)
	assert.False(t, res.Drained)
}

func TestRunConnectionLost(t *testing.T) {
	f := &fakeController{receive: func(context.Context, int) (protocol.Snapshot, error) {
		return protocol.Snapshot{}, errors.New("eof")
	}}
	e := newEngine(f, Options{}, control)

	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestRunCancelledWhileIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeController{receive: script(idle)}
	e := newEngine(f, Options{DrainTimeout: time.Second}, control)

	res, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Cycles)
	assert.Empty(t, f.Calls())
}

func TestRunDrainsOutstandingPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeController{}
	f.receive = func(rctx context.Context, n int) (protocol.Snapshot, error) {
		switch n {
		case 1:
			return idle, nil
		case 2:
			cancel()
			return active, nil
		case 3:
			return done, nil
		default:
			return idle, nil
		}
	}
	e := newEngine(f, Options{DrainTimeout: time.Second}, control, control)

	res, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Drained)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, []string{"pose", "direction:left_to_right", "control:clear"}, f.Calls())
}

func TestRunDrainTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeController{}
	f.receive = func(rctx context.Context, n int) (protocol.Snapshot, error) {
		if n == 1 {
			return idle, nil
		}
		if n == 2 {
			cancel()
		}
		select {
		case <-rctx.Done():
			return protocol.Snapshot{}, rctx.Err()
		case <-time.After(time.Millisecond):
			return active, nil
		}
	}
	e := newEngine(f, Options{DrainTimeout: 20 * time.Millisecond}, control)

	_, err := e.Run(ctx)
	assert.ErrorIs(t, err, ErrDrainTimeout)
}

func TestStatus(t *testing.T) {
	e := newEngine(&fakeController{}, Options{}, task.Gantry{MoveLeft: true}, control)

	st := e.Status()
	assert.Equal(t, 2, st.Queued)
	assert.Equal(t, "gantry(left=true, right=false)", st.Next)
	assert.Len(t, e.Pending(), 2)

	steps(t, e, idle)
	st = e.Status()
	assert.Equal(t, 1, st.Cycle)
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, 1, st.Dispatched)
	assert.True(t, st.Observed.ProgramRunning)
}
