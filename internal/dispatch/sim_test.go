package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portmark/internal/link"
	"github.com/mattjoyce/portmark/internal/link/sim"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/plan"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/queue"
	"github.com/mattjoyce/portmark/internal/task"
)

func runAgainstSim(t *testing.T, opts Options, simOpts ...sim.Option) (*sim.Controller, []task.Task, Result) {
	t.Helper()
	ctx := context.Background()

	class, err := plan.Lookup("testing")
	require.NoError(t, err)
	tasks, err := plan.Build(class, plan.SideA, plan.DefaultOptions())
	require.NoError(t, err)

	codec := protocol.NewCodec(protocol.DefaultRecipes())
	ctrl := sim.New(codec, append([]sim.Option{sim.WithPassCycles(3), sim.WithHomeCycles(2)}, simOpts...)...)
	session := link.NewSession(ctrl, codec, nil)
	require.NoError(t, session.Open(ctx))

	e := New(session, queue.New(tasks...), opts)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, session.Close(ctx))
	return ctrl, tasks, res
}

// directionSends returns the non-idle direction codes in send order and
// checks that every one was preceded by a pose update.
func directionSends(t *testing.T, ctrl *sim.Controller) []int32 {
	t.Helper()
	var codes []int32
	sent := ctrl.Sent()
	for i, s := range sent {
		if s.Group != protocol.GroupControl {
			continue
		}
		code := s.Values["input_int_register_0"].(int32)
		if code == protocol.NoTask {
			continue
		}
		require.Greater(t, i, 0)
		assert.Equal(t, protocol.GroupPositions, sent[i-1].Group, "pose must precede direction")
		codes = append(codes, code)
	}
	return codes
}

func TestRunPlanAgainstSimulator(t *testing.T) {
	ctrl, tasks, res := runAgainstSim(t, Options{})

	assert.Equal(t, len(tasks), res.Dispatched)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, []int32{1, 2, 1}, directionSends(t, ctrl))

	var gantry []task.Gantry
	for _, s := range ctrl.Sent() {
		if s.Group == protocol.GroupGantry {
			gantry = append(gantry, task.Gantry{
				MoveLeft:  s.Values["input_bit_register_74"].(bool),
				MoveRight: s.Values["input_bit_register_75"].(bool),
			})
		}
	}
	assert.Equal(t, []task.Gantry{{MoveLeft: true}, {MoveRight: true}}, gantry)

	st := ctrl.State()
	assert.Equal(t, protocol.NoTask, st.CurrentTask)
	assert.False(t, st.Homed)
}

func TestRunRecoversFromHalt(t *testing.T) {
	src := &fixedDecision{d: operator.Resume}
	ctrl, tasks, res := runAgainstSim(t,
		Options{Decisions: src, PollInterval: time.Millisecond},
		sim.WithHaltAt(6, 20),
	)

	assert.Equal(t, 2, src.calls)
	assert.Equal(t, len(tasks), res.Dispatched)
	assert.Equal(t, []int32{1, 2, 1}, directionSends(t, ctrl))
}
