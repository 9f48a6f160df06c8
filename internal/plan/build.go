package plan

import "github.com/mattjoyce/portmark/internal/task"

// Options shapes a full job around the print passes.
type Options struct {
	Starting    task.Direction
	Alternating bool
	Entry       []task.Task
	Exit        []task.Task
}

// DefaultOptions returns the job shape used on the line: run the gantry in,
// print alternating passes, then home and run the gantry out.
func DefaultOptions() Options {
	return Options{
		Starting:    task.LeftToRight,
		Alternating: true,
		Entry:       []task.Task{task.Gantry{MoveLeft: true}},
		Exit:        []task.Task{task.Home{Engage: true}, task.Gantry{MoveRight: true}},
	}
}

// Build returns entry, print and exit tasks for one side of a stack.
func Build(class CartonClass, side Side, opts Options) ([]task.Task, error) {
	wps, err := Waypoints(class, side)
	if err != nil {
		return nil, err
	}
	prints, err := Tasks(wps, opts.Starting, opts.Alternating)
	if err != nil {
		return nil, err
	}

	out := make([]task.Task, 0, len(opts.Entry)+len(prints)+len(opts.Exit))
	out = append(out, opts.Entry...)
	out = append(out, prints...)
	out = append(out, opts.Exit...)
	return out, nil
}
