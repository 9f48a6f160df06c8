package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/portmark/internal/task"
)

func TestDirectionCodes(t *testing.T) {
	for _, d := range task.Directions {
		code, err := DirectionCode(d)
		require.NoError(t, err)
		assert.NotEqual(t, int32(NoTask), code)

		back, ok := DirectionFromCode(int(code))
		require.True(t, ok)
		assert.Equal(t, d, back)
	}

	_, err := DirectionCode(task.Direction(0))
	assert.Error(t, err)

	assert.Equal(t, "none", TaskName(0))
	assert.Equal(t, "left_to_right", TaskName(1))
	assert.Equal(t, "right_to_left", TaskName(2))
	assert.Equal(t, "task(7)", TaskName(7))
}

func TestEncodeFillsWholeGroup(t *testing.T) {
	c := NewCodec(DefaultRecipes())

	tests := []struct {
		name string
		got  Values
		want Values
	}{
		{
			name: "gantry",
			got:  c.EncodeGantry(task.Gantry{MoveLeft: true}),
			want: Values{"input_bit_register_74": true, "input_bit_register_75": false},
		},
		{
			name: "home engage",
			got:  c.EncodeHome(true),
			want: Values{"input_bit_register_76": true},
		},
		{
			name: "control clear",
			got:  c.EncodeControlClear(),
			want: Values{"input_int_register_0": int32(0)},
		},
		{
			name: "internal restart",
			got:  c.EncodeInternal(InternalBits{Restart: true}),
			want: Values{"input_bit_register_64": false, "input_bit_register_65": true},
		},
		{
			name: "pose",
			got:  c.EncodePose(task.Pose{1, 2, 3, 4, 5, 6}),
			want: Values{
				"input_double_register_0": 1.0,
				"input_double_register_1": 2.0,
				"input_double_register_2": 3.0,
				"input_double_register_3": 4.0,
				"input_double_register_6": 5.0,
				"input_double_register_9": 6.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestEncodeDirection(t *testing.T) {
	c := NewCodec(DefaultRecipes())

	v, err := c.EncodeDirection(task.RightToLeft)
	require.NoError(t, err)
	assert.Equal(t, Values{"input_int_register_0": int32(2)}, v)

	_, err = c.EncodeDirection(task.Direction(0))
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	c := NewCodec(DefaultRecipes())

	snap := Snapshot{
		CurrentTask:    2,
		TaskActive:     true,
		Homed:          true,
		ProgramRunning: true,
		Telemetry: Telemetry{
			TCPPose:     [6]float64{0.1, 0.2, 0.3, 0, 0, 0},
			JointAngles: [6]float64{1, 2, 3, 4, 5, 6},
		},
	}
	got, err := c.DecodeState(c.EncodeState(snap))
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestDecodeStateLenientNumbers(t *testing.T) {
	c := NewCodec(DefaultRecipes())

	v := c.EncodeState(Snapshot{})
	v["output_int_register_0"] = float64(1)
	v["output_bit_register_74"] = 1
	v["actual_q"] = []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}

	snap, err := c.DecodeState(v)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentTask)
	assert.True(t, snap.ProgramRunning)
	assert.Equal(t, [6]float64{1, 2, 3, 4, 5, 6}, snap.Telemetry.JointAngles)
}

func TestDecodeStateRejectsBadFrames(t *testing.T) {
	c := NewCodec(DefaultRecipes())

	tests := []struct {
		name   string
		mutate func(Values)
	}{
		{"missing field", func(v Values) { delete(v, "output_bit_register_65") }},
		{"wrong bool type", func(v Values) { v["output_bit_register_64"] = "yes" }},
		{"fractional task", func(v Values) { v["output_int_register_0"] = 1.5 }},
		{"short vector", func(v Values) { v["actual_TCP_pose"] = []float64{1, 2} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.EncodeState(Snapshot{})
			tt.mutate(v)
			_, err := c.DecodeState(v)
			assert.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}

func TestParseRecipes(t *testing.T) {
	data, err := yaml.Marshal(DefaultRecipes())
	require.NoError(t, err)

	r, err := ParseRecipes(data)
	require.NoError(t, err)

	s, err := r.Group(GroupPositions)
	require.NoError(t, err)
	assert.Len(t, s.Fields, 6)
	f, ok := s.Field(PoseRole(5))
	require.True(t, ok)
	assert.Equal(t, "input_double_register_9", f.Name)

	_, err = r.Group("print")
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestParseRecipesRejects(t *testing.T) {
	base := func() map[string][]Field {
		groups := map[string][]Field{}
		for _, name := range append([]string{GroupState}, InputGroups...) {
			s, _ := DefaultRecipes().Group(name)
			groups[name] = append([]Field{}, s.Fields...)
		}
		return groups
	}

	tests := []struct {
		name   string
		mutate func(map[string][]Field)
	}{
		{"missing group", func(g map[string][]Field) { delete(g, GroupHome) }},
		{"unknown group", func(g map[string][]Field) { g["print"] = g[GroupHome] }},
		{"missing role", func(g map[string][]Field) { g[GroupGantry] = g[GroupGantry][:1] }},
		{"foreign role", func(g map[string][]Field) {
			g[GroupHome] = append(g[GroupHome], Field{Name: "x", Type: TypeBool, Role: RoleResume})
		}},
		{"wrong type", func(g map[string][]Field) {
			g[GroupControl] = []Field{{Name: "input_int_register_0", Type: TypeDouble, Role: RoleDirection}}
		}},
		{"duplicate name", func(g map[string][]Field) {
			g[GroupHome] = append(g[GroupHome], Field{Name: "input_bit_register_76", Type: TypeBool})
		}},
		{"unknown type", func(g map[string][]Field) {
			g[GroupHome] = append(g[GroupHome], Field{Name: "spare", Type: "FLOAT16"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base()
			tt.mutate(g)
			_, err := NewRecipes(g)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}

	_, err := ParseRecipes([]byte("groups: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestUnroledFieldsAreZeroed(t *testing.T) {
	groups := map[string][]Field{}
	for _, name := range append([]string{GroupState}, InputGroups...) {
		s, _ := DefaultRecipes().Group(name)
		groups[name] = s.Fields
	}
	groups[GroupHome] = append([]Field{}, groups[GroupHome]...)
	groups[GroupHome] = append(groups[GroupHome], Field{Name: "input_int_register_5", Type: TypeInt32})

	r, err := NewRecipes(groups)
	require.NoError(t, err)

	v := NewCodec(r).EncodeHome(true)
	assert.Equal(t, Values{"input_bit_register_76": true, "input_int_register_5": int32(0)}, v)
}
