package plan

import (
	"fmt"

	"github.com/mattjoyce/portmark/internal/task"
)

// Tasks folds waypoints into one Control task per printed layer.
//
// With alternating set the direction flips on every layer starting from
// starting, so the head sweeps back and forth instead of returning to the same
// edge. Otherwise every pass uses starting.
func Tasks(waypoints []Waypoint, starting task.Direction, alternating bool) ([]task.Task, error) {
	if !starting.Valid() {
		return nil, fmt.Errorf("%w: starting direction %s", ErrInvalidConfiguration, starting)
	}
	if len(waypoints)%MarksPerLayer != 0 {
		return nil, fmt.Errorf("%w: %d waypoints is not a whole number of layers", ErrInvalidConfiguration, len(waypoints))
	}

	out := make([]task.Task, 0, len(waypoints)/MarksPerLayer)
	dir := starting
	for i := 0; i < len(waypoints); i += MarksPerLayer {
		layer := waypoints[i : i+MarksPerLayer]
		for _, wp := range layer[1:] {
			if wp.Layer != layer[0].Layer || wp.Forward != layer[0].Forward {
				return nil, fmt.Errorf("%w: waypoints %d..%d span more than one layer", ErrInvalidConfiguration, i, i+MarksPerLayer-1)
			}
		}

		out = append(out, task.Control{
			Direction: dir,
			Pose: task.Pose{
				layer[0].Lateral,
				layer[1].Lateral,
				layer[2].Lateral,
				layer[0].Forward,
				layer[0].Engage,
				layer[0].Retract,
			},
		})
		if alternating {
			dir = dir.Next()
		}
	}
	return out, nil
}
