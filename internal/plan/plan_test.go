package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portmark/internal/task"
)

const tol = 1e-9

func fourLayer() CartonClass {
	return CartonClass{Name: "four", Depth: 527, Width: 370, Height: 115, Layers: 4, Family: Alternating}
}

func TestLayerPlanWorkedExample(t *testing.T) {
	sideA, err := LayerPlan(fourLayer(), SideA)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, sideA)

	sideB, err := LayerPlan(fourLayer(), SideB)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, true}, sideB)
}

func TestLayerPlanAllClasses(t *testing.T) {
	cat, err := NewCatalog()
	require.NoError(t, err)

	for _, name := range cat.Names() {
		class, err := cat.Lookup(name)
		require.NoError(t, err)

		t.Run(name, func(t *testing.T) {
			a, err := LayerPlan(class, SideA)
			require.NoError(t, err)
			b, err := LayerPlan(class, SideB)
			require.NoError(t, err)
			require.Len(t, a, class.Layers)
			require.Len(t, b, class.Layers)

			for x := range class.Layers {
				var want bool
				switch class.Family {
				case Alternating:
					want = x%2 == 0
				case TopBiased:
					want = x != class.Layers-2
				}
				assert.Equal(t, want, a[x], "side A layer %d", x)
				assert.Equal(t, !want, b[x], "side B layer %d", x)
			}
		})
	}
}

func TestTopBiasedSkipsSecondFromTop(t *testing.T) {
	class, err := Lookup("chilled_medium")
	require.NoError(t, err)

	got, err := LayerPlan(class, SideA)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true, true, false, true}, got)
}

func TestLayerPlanRejectsBadInput(t *testing.T) {
	_, err := LayerPlan(CartonClass{Name: "x", Width: 1, Height: 1, Layers: 3, Family: "spiral"}, SideA)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = LayerPlan(fourLayer(), Side("C"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Lookup("frozen_huge")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestWaypointsNumericExample(t *testing.T) {
	wps, err := Waypoints(fourLayer(), SideA)
	require.NoError(t, err)
	require.Len(t, wps, 6)

	first := wps[:3]
	want := []float64{-0.225, 0.145, 0.515}
	for i, wp := range first {
		assert.InDelta(t, want[i], wp.Lateral, tol)
		assert.InDelta(t, 0.100, wp.Forward, tol)
		assert.InDelta(t, 0.0, wp.Engage, tol)
		assert.InDelta(t, 0.050, wp.Retract, tol)
		assert.Equal(t, 0, wp.Layer)
	}
	// Layer 2 is the next printed layer: two heights further on.
	assert.InDelta(t, 0.100+2*0.115, wps[3].Forward, tol)
}

func TestWaypointsForwardOffsets(t *testing.T) {
	cat, err := NewCatalog()
	require.NoError(t, err)

	for _, name := range cat.Names() {
		class, _ := cat.Lookup(name)
		for _, side := range []Side{SideA, SideB} {
			layers, err := LayerPlan(class, side)
			require.NoError(t, err)
			wps, err := Waypoints(class, side)
			require.NoError(t, err)

			printed := 0
			for _, p := range layers {
				if p {
					printed++
				}
			}
			require.Len(t, wps, MarksPerLayer*printed, "%s/%s", name, side)

			prev := -1.0
			for i := 0; i < len(wps); i += MarksPerLayer {
				wp := wps[i]
				assert.InDelta(t, (100+float64(wp.Layer)*class.Height)/1000, wp.Forward, tol)
				assert.Greater(t, wp.Forward, prev)
				prev = wp.Forward
			}
		}
	}
}

func TestTasksAlternatingDirections(t *testing.T) {
	class, err := Lookup("chilled_small")
	require.NoError(t, err)
	wps, err := Waypoints(class, SideA)
	require.NoError(t, err)

	tasks, err := Tasks(wps, task.LeftToRight, true)
	require.NoError(t, err)
	require.Len(t, tasks, len(wps)/MarksPerLayer)

	for i, tk := range tasks {
		c, ok := tk.(task.Control)
		require.True(t, ok)
		want := task.LeftToRight
		if i%2 == 1 {
			want = task.RightToLeft
		}
		assert.Equal(t, want, c.Direction, "pass %d", i)
	}

	fixed, err := Tasks(wps, task.RightToLeft, false)
	require.NoError(t, err)
	for _, tk := range fixed {
		assert.Equal(t, task.RightToLeft, tk.(task.Control).Direction)
	}
}

func TestTasksPoseLayout(t *testing.T) {
	wps, err := Waypoints(fourLayer(), SideA)
	require.NoError(t, err)
	tasks, err := Tasks(wps, task.LeftToRight, true)
	require.NoError(t, err)

	pose := tasks[0].(task.Control).Pose
	want := task.Pose{-0.225, 0.145, 0.515, 0.100, 0, 0.050}
	for i := range want {
		assert.InDelta(t, want[i], pose[i], tol, "pose[%d]", i)
	}
}

func TestTasksRejectsMalformedWaypoints(t *testing.T) {
	wps, err := Waypoints(fourLayer(), SideA)
	require.NoError(t, err)

	_, err = Tasks(wps[:4], task.LeftToRight, true)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	mixed := append([]Waypoint{}, wps[:2]...)
	mixed = append(mixed, wps[3])
	_, err = Tasks(mixed, task.LeftToRight, true)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Tasks(wps, task.Direction(9), true)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestBuildWrapsPrintPasses(t *testing.T) {
	class, err := Lookup("frozen_small")
	require.NoError(t, err)

	tasks, err := Build(class, SideA, DefaultOptions())
	require.NoError(t, err)

	// 8 layers alternating: 4 passes, plus one entry and two exit tasks.
	require.Len(t, tasks, 7)
	assert.Equal(t, task.Gantry{MoveLeft: true}, tasks[0])
	assert.Equal(t, task.Home{Engage: true}, tasks[5])
	assert.Equal(t, task.Gantry{MoveRight: true}, tasks[6])
	for _, tk := range tasks[1:5] {
		assert.Equal(t, task.KindControl, tk.Kind())
	}
}

func TestCatalogExtras(t *testing.T) {
	cat, err := NewCatalog(CartonClass{Name: "pallet_tall", Width: 400, Height: 250, Layers: 3, Family: TopBiased})
	require.NoError(t, err)

	class, err := cat.Lookup("pallet_tall")
	require.NoError(t, err)
	assert.Equal(t, 3, class.Layers)
	assert.Contains(t, cat.Names(), "frozen_small")

	_, err = NewCatalog(CartonClass{Name: "broken", Width: 1, Height: 1, Layers: 0, Family: Alternating})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
