package protocol

import (
	"fmt"
	"math"

	"github.com/mattjoyce/portmark/internal/task"
)

// NoTask is the current-task code the controller reports while idle.
const NoTask = 0

var directionCodes = map[task.Direction]int32{
	task.LeftToRight: 1,
	task.RightToLeft: 2,
}

// DirectionCode returns the register code for d.
func DirectionCode(d task.Direction) (int32, error) {
	code, ok := directionCodes[d]
	if !ok {
		return 0, fmt.Errorf("no register code for direction %s", d)
	}
	return code, nil
}

// DirectionFromCode maps a current-task code back to a direction.
func DirectionFromCode(code int) (task.Direction, bool) {
	for d, c := range directionCodes {
		if int(c) == code {
			return d, true
		}
	}
	return 0, false
}

// TaskName renders a current-task code for logs.
func TaskName(code int) string {
	if code == NoTask {
		return "none"
	}
	if d, ok := DirectionFromCode(code); ok {
		return d.String()
	}
	return fmt.Sprintf("task(%d)", code)
}

// Codec translates between domain commands and register group values.
// It is the only place field names and integer codes are known.
type Codec struct {
	recipes *Recipes
}

// NewCodec binds a codec to validated recipes.
func NewCodec(r *Recipes) *Codec {
	return &Codec{recipes: r}
}

// Recipes returns the schemas the codec encodes against.
func (c *Codec) Recipes() *Recipes { return c.recipes }

// Group returns a validated schema; recipes guarantee every group exists.
func (c *Codec) Group(name string) Schema {
	s, err := c.recipes.Group(name)
	if err != nil {
		panic(err)
	}
	return s
}

// frame builds a full group update: role-bound fields from set, every other
// field zeroed so stale values are never re-sent.
func (c *Codec) frame(group string, set map[Role]any) Values {
	s := c.Group(group)
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		if val, ok := set[f.Role]; ok && f.Role != "" {
			v[f.Name] = val
			continue
		}
		v[f.Name] = f.Type.Zero()
	}
	return v
}

// EncodeGantry encodes a conveyor command.
func (c *Codec) EncodeGantry(g task.Gantry) Values {
	return c.frame(GroupGantry, map[Role]any{
		RoleMoveLeft:  g.MoveLeft,
		RoleMoveRight: g.MoveRight,
	})
}

// EncodeHome encodes the home-engage bit.
func (c *Codec) EncodeHome(engage bool) Values {
	return c.frame(GroupHome, map[Role]any{RoleEngage: engage})
}

// EncodePose encodes the six pose registers.
func (c *Codec) EncodePose(p task.Pose) Values {
	set := make(map[Role]any, len(p))
	for i, v := range p {
		set[PoseRole(i)] = v
	}
	return c.frame(GroupPositions, set)
}

// EncodeDirection encodes the control register that starts a print pass.
func (c *Codec) EncodeDirection(d task.Direction) (Values, error) {
	code, err := DirectionCode(d)
	if err != nil {
		return nil, err
	}
	return c.frame(GroupControl, map[Role]any{RoleDirection: code}), nil
}

// EncodeControlClear encodes the idle control register.
func (c *Codec) EncodeControlClear() Values {
	return c.frame(GroupControl, map[Role]any{RoleDirection: int32(NoTask)})
}

// EncodeInternal encodes the resume/restart bits.
func (c *Codec) EncodeInternal(b InternalBits) Values {
	return c.frame(GroupInternal, map[Role]any{
		RoleResume:  b.Resume,
		RoleRestart: b.Restart,
	})
}

// DecodeState reads a state frame into a Snapshot.
func (c *Codec) DecodeState(v Values) (Snapshot, error) {
	s := c.Group(GroupState)
	var snap Snapshot

	boolTargets := map[Role]*bool{
		RoleTaskActive:     &snap.TaskActive,
		RoleTaskDone:       &snap.TaskDone,
		RoleHomed:          &snap.Homed,
		RolePrinting:       &snap.Printing,
		RoleProgramRunning: &snap.ProgramRunning,
	}
	vecTargets := map[Role]*[6]float64{
		RoleTCPPose:        &snap.Telemetry.TCPPose,
		RoleJointAngles:    &snap.Telemetry.JointAngles,
		RoleTCPSpeed:       &snap.Telemetry.TCPSpeed,
		RoleTargetTCPSpeed: &snap.Telemetry.TargetTCPSpeed,
	}

	for _, f := range s.Fields {
		if f.Role == "" {
			continue
		}
		raw, ok := v[f.Name]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: missing field %q", ErrInvalidFrame, f.Name)
		}

		var err error
		switch {
		case f.Role == RoleCurrentTask:
			snap.CurrentTask, err = asInt(raw)
		case boolTargets[f.Role] != nil:
			*boolTargets[f.Role], err = asBool(raw)
		case vecTargets[f.Role] != nil:
			*vecTargets[f.Role], err = asVector6(raw)
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: field %q: %v", ErrInvalidFrame, f.Name, err)
		}
	}
	return snap, nil
}

// EncodeState is the inverse of DecodeState, used by simulated controllers.
func (c *Codec) EncodeState(snap Snapshot) Values {
	t := snap.Telemetry
	return c.frame(GroupState, map[Role]any{
		RoleCurrentTask:    int32(snap.CurrentTask),
		RoleTaskActive:     snap.TaskActive,
		RoleTaskDone:       snap.TaskDone,
		RoleHomed:          snap.Homed,
		RolePrinting:       snap.Printing,
		RoleProgramRunning: snap.ProgramRunning,
		RoleTCPPose:        t.TCPPose[:],
		RoleJointAngles:    t.JointAngles[:],
		RoleTCPSpeed:       t.TCPSpeed[:],
		RoleTargetTCPSpeed: t.TargetTCPSpeed[:],
	})
}

func asInt(raw any) (int, error) {
	switch x := raw.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integer value %v", x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func asBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case int, int32, int64, uint32, uint64, float64:
		n, err := asInt(x)
		return n != 0, err
	default:
		return false, fmt.Errorf("expected bool, got %T", raw)
	}
}

func asVector6(raw any) ([6]float64, error) {
	var out [6]float64
	switch x := raw.(type) {
	case [6]float64:
		return x, nil
	case []float64:
		if len(x) != 6 {
			return out, fmt.Errorf("expected 6 values, got %d", len(x))
		}
		copy(out[:], x)
		return out, nil
	case []any:
		if len(x) != 6 {
			return out, fmt.Errorf("expected 6 values, got %d", len(x))
		}
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return out, fmt.Errorf("element %d: expected float, got %T", i, e)
			}
			out[i] = f
		}
		return out, nil
	default:
		return out, fmt.Errorf("expected vector, got %T", raw)
	}
}
