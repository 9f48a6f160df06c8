// Package task defines the commands a print job issues to the controller.
//
// A Task is one of three variants. Gantry drives the background conveyor and
// is never acknowledged. Home and Control are exclusive foreground commands:
// the dispatcher waits for the controller to report completion before issuing
// the next one of the same family.
package task

import "fmt"

// Kind names a task variant.
type Kind string

const (
	KindGantry  Kind = "gantry"
	KindHome    Kind = "home"
	KindControl Kind = "control"
)

// Task is a sealed union of Gantry, Home and Control.
type Task interface {
	Kind() Kind
	String() string
	isTask()
}

// Direction is the traversal direction of a print pass.
type Direction uint8

const (
	LeftToRight Direction = iota + 1
	RightToLeft
)

// Directions lists every valid direction in cycle order.
var Directions = []Direction{LeftToRight, RightToLeft}

func (d Direction) String() string {
	switch d {
	case LeftToRight:
		return "left_to_right"
	case RightToLeft:
		return "right_to_left"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == LeftToRight || d == RightToLeft
}

// Next returns the opposite direction.
func (d Direction) Next() Direction {
	if d == LeftToRight {
		return RightToLeft
	}
	return LeftToRight
}

// ParseDirection accepts the names produced by Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left_to_right", "ltr":
		return LeftToRight, nil
	case "right_to_left", "rtl":
		return RightToLeft, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Pose is the six-value print pose: three lateral offsets, the forward offset,
// the engage depth and the retract depth, in metres.
type Pose [6]float64

// Gantry moves the conveyor. Both flags false stops it.
type Gantry struct {
	MoveLeft  bool
	MoveRight bool
}

func (Gantry) Kind() Kind { return KindGantry }
func (Gantry) isTask()    {}

func (g Gantry) String() string {
	return fmt.Sprintf("gantry(left=%t, right=%t)", g.MoveLeft, g.MoveRight)
}

// Home asks the controller to drive the head to its home position.
type Home struct {
	Engage bool
}

func (Home) Kind() Kind { return KindHome }
func (Home) isTask()    {}

func (h Home) String() string {
	return fmt.Sprintf("home(engage=%t)", h.Engage)
}

// Control is one print pass across a layer.
type Control struct {
	Direction Direction
	Pose      Pose
}

func (Control) Kind() Kind { return KindControl }
func (Control) isTask()    {}

func (c Control) String() string {
	return fmt.Sprintf("control(%s, %v)", c.Direction, [6]float64(c.Pose))
}
