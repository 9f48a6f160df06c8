package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema reports a recipe that cannot drive the controller.
var ErrInvalidSchema = errors.New("invalid register schema")

// ErrInvalidFrame reports a received state frame that does not match its schema.
var ErrInvalidFrame = errors.New("invalid state frame")

// Register group names.
const (
	GroupState     = "state"
	GroupGantry    = "gantry"
	GroupInternal  = "internal"
	GroupHome      = "home"
	GroupControl   = "control"
	GroupPositions = "positions"
)

// InputGroups are the groups written by the host, in the order they are configured.
var InputGroups = []string{GroupGantry, GroupInternal, GroupHome, GroupControl, GroupPositions}

// FieldType is the wire type of a register field.
type FieldType string

const (
	TypeBool         FieldType = "BOOL"
	TypeInt32        FieldType = "INT32"
	TypeUInt32       FieldType = "UINT32"
	TypeUInt64       FieldType = "UINT64"
	TypeDouble       FieldType = "DOUBLE"
	TypeVector3D     FieldType = "VECTOR3D"
	TypeVector6D     FieldType = "VECTOR6D"
	TypeVector6Int32 FieldType = "VECTOR6INT32"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeBool, TypeInt32, TypeUInt32, TypeUInt64, TypeDouble, TypeVector3D, TypeVector6D, TypeVector6Int32:
		return true
	}
	return false
}

// Zero returns the zero value used when a field has no role in an update.
func (t FieldType) Zero() any {
	switch t {
	case TypeBool:
		return false
	case TypeInt32:
		return int32(0)
	case TypeUInt32:
		return uint32(0)
	case TypeUInt64:
		return uint64(0)
	case TypeDouble:
		return 0.0
	case TypeVector3D:
		return make([]float64, 3)
	case TypeVector6D:
		return make([]float64, 6)
	case TypeVector6Int32:
		return make([]int32, 6)
	}
	return nil
}

// Role is what a field means to portmark, independent of its register address.
type Role string

// State roles.
const (
	RoleCurrentTask    Role = "current_task"
	RoleTaskActive     Role = "task_active"
	RoleTaskDone       Role = "task_done"
	RoleHomed          Role = "homed"
	RolePrinting       Role = "printing"
	RoleProgramRunning Role = "program_running"
	RoleTCPPose        Role = "tcp_pose"
	RoleJointAngles    Role = "joint_angles"
	RoleTCPSpeed       Role = "tcp_speed"
	RoleTargetTCPSpeed Role = "target_tcp_speed"
)

// Input roles.
const (
	RoleMoveLeft  Role = "move_left"
	RoleMoveRight Role = "move_right"
	RoleResume    Role = "resume"
	RoleRestart   Role = "restart"
	RoleEngage    Role = "engage"
	RoleDirection Role = "direction"
)

// PoseRole returns the role of pose component i (0..5).
func PoseRole(i int) Role {
	return Role(fmt.Sprintf("pose_%d", i))
}

// Field is one named, typed register in a group.
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type" json:"type"`
	Role Role      `yaml:"role,omitempty" json:"role,omitempty"`
}

// Schema is an ordered list of fields exchanged as one group.
type Schema struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Field finds a field by role.
func (s Schema) Field(role Role) (Field, bool) {
	for _, f := range s.Fields {
		if f.Role == role {
			return f, true
		}
	}
	return Field{}, false
}

// Values is one group's register contents keyed by field name.
type Values map[string]any

// Snapshot is one cycle of controller status.
type Snapshot struct {
	CurrentTask    int
	TaskActive     bool
	TaskDone       bool
	Homed          bool
	Printing       bool
	ProgramRunning bool
	Telemetry      Telemetry
}

// Telemetry carries the motion fields only the recorder consumes.
type Telemetry struct {
	TCPPose        [6]float64
	JointAngles    [6]float64
	TCPSpeed       [6]float64
	TargetTCPSpeed [6]float64
}

// InternalBits drive the controller program's resume/restart inputs.
type InternalBits struct {
	Resume  bool
	Restart bool
}
