package protocol

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Recipes holds the register group schemas negotiated with the controller.
type Recipes struct {
	groups map[string]Schema
}

type recipeFile struct {
	Groups map[string][]Field `yaml:"groups"`
}

type roleSpec struct {
	types    []FieldType
	required bool
}

var boolRole = roleSpec{types: []FieldType{TypeBool}, required: true}

// groupRoles lists the roles each group may carry.
var groupRoles = map[string]map[Role]roleSpec{
	GroupState: {
		RoleCurrentTask:    {types: []FieldType{TypeInt32, TypeUInt32}, required: true},
		RoleTaskActive:     boolRole,
		RoleTaskDone:       boolRole,
		RoleHomed:          boolRole,
		RolePrinting:       boolRole,
		RoleProgramRunning: boolRole,
		RoleTCPPose:        {types: []FieldType{TypeVector6D}},
		RoleJointAngles:    {types: []FieldType{TypeVector6D}},
		RoleTCPSpeed:       {types: []FieldType{TypeVector6D}},
		RoleTargetTCPSpeed: {types: []FieldType{TypeVector6D}},
	},
	GroupGantry: {
		RoleMoveLeft:  boolRole,
		RoleMoveRight: boolRole,
	},
	GroupInternal: {
		RoleResume:  boolRole,
		RoleRestart: boolRole,
	},
	GroupHome: {
		RoleEngage: boolRole,
	},
	GroupControl: {
		RoleDirection: {types: []FieldType{TypeInt32}, required: true},
	},
	GroupPositions: positionRoles(),
}

func positionRoles() map[Role]roleSpec {
	m := make(map[Role]roleSpec, 6)
	for i := range 6 {
		m[PoseRole(i)] = roleSpec{types: []FieldType{TypeDouble}, required: true}
	}
	return m
}

// LoadRecipes reads and validates a YAML recipe file.
func LoadRecipes(path string) (*Recipes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipes %s: %w", path, err)
	}
	r, err := ParseRecipes(data)
	if err != nil {
		return nil, fmt.Errorf("recipes %s: %w", path, err)
	}
	return r, nil
}

// ParseRecipes decodes and validates YAML recipe content.
func ParseRecipes(data []byte) (*Recipes, error) {
	var raw recipeFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return NewRecipes(raw.Groups)
}

// NewRecipes validates groups and builds a Recipes.
func NewRecipes(groups map[string][]Field) (*Recipes, error) {
	r := &Recipes{groups: make(map[string]Schema, len(groups))}
	for _, name := range append([]string{GroupState}, InputGroups...) {
		fields, ok := groups[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing group %q", ErrInvalidSchema, name)
		}
		schema := Schema{Name: name, Fields: fields}
		if err := validateGroup(schema); err != nil {
			return nil, err
		}
		r.groups[name] = schema
	}
	for name := range groups {
		if _, ok := groupRoles[name]; !ok {
			return nil, fmt.Errorf("%w: unknown group %q", ErrInvalidSchema, name)
		}
	}
	return r, nil
}

func validateGroup(s Schema) error {
	allowed := groupRoles[s.Name]
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: group %q has no fields", ErrInvalidSchema, s.Name)
	}

	names := make(map[string]bool, len(s.Fields))
	seen := make(map[Role]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s.fields[%d]: name is required", ErrInvalidSchema, s.Name, i)
		}
		if names[f.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSchema, s.Name, f.Name)
		}
		names[f.Name] = true
		if !f.Type.valid() {
			return fmt.Errorf("%w: %s.%s: unknown type %q", ErrInvalidSchema, s.Name, f.Name, f.Type)
		}
		if f.Role == "" {
			continue
		}
		spec, ok := allowed[f.Role]
		if !ok {
			return fmt.Errorf("%w: %s.%s: role %q does not belong to this group", ErrInvalidSchema, s.Name, f.Name, f.Role)
		}
		if seen[f.Role] {
			return fmt.Errorf("%w: %s: role %q assigned twice", ErrInvalidSchema, s.Name, f.Role)
		}
		seen[f.Role] = true
		if !typeIn(f.Type, spec.types) {
			return fmt.Errorf("%w: %s.%s: role %q needs type %v, got %s", ErrInvalidSchema, s.Name, f.Name, f.Role, spec.types, f.Type)
		}
	}

	for _, role := range sortedRoles(allowed) {
		if allowed[role].required && !seen[role] {
			return fmt.Errorf("%w: group %q is missing role %q", ErrInvalidSchema, s.Name, role)
		}
	}
	return nil
}

func typeIn(t FieldType, types []FieldType) bool {
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

func sortedRoles(m map[Role]roleSpec) []Role {
	out := make([]Role, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Group returns the schema registered under name.
func (r *Recipes) Group(name string) (Schema, error) {
	s, ok := r.groups[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: unknown group %q", ErrInvalidSchema, name)
	}
	return s, nil
}

// DefaultRecipes mirrors the register layout of the reference controller program.
func DefaultRecipes() *Recipes {
	bit := func(n int, role Role) Field {
		return Field{Name: fmt.Sprintf("input_bit_register_%d", n), Type: TypeBool, Role: role}
	}
	out := func(n int, role Role) Field {
		return Field{Name: fmt.Sprintf("output_bit_register_%d", n), Type: TypeBool, Role: role}
	}
	dbl := func(n, pose int) Field {
		return Field{Name: fmt.Sprintf("input_double_register_%d", n), Type: TypeDouble, Role: PoseRole(pose)}
	}

	r, err := NewRecipes(map[string][]Field{
		GroupState: {
			{Name: "output_int_register_0", Type: TypeInt32, Role: RoleCurrentTask},
			out(64, RoleTaskActive),
			out(65, RoleTaskDone),
			out(67, RoleHomed),
			out(68, RolePrinting),
			out(74, RoleProgramRunning),
			{Name: "actual_TCP_pose", Type: TypeVector6D, Role: RoleTCPPose},
			{Name: "actual_q", Type: TypeVector6D, Role: RoleJointAngles},
			{Name: "actual_TCP_speed", Type: TypeVector6D, Role: RoleTCPSpeed},
			{Name: "target_TCP_speed", Type: TypeVector6D, Role: RoleTargetTCPSpeed},
		},
		GroupGantry:   {bit(74, RoleMoveLeft), bit(75, RoleMoveRight)},
		GroupInternal: {bit(64, RoleResume), bit(65, RoleRestart)},
		GroupHome:     {bit(76, RoleEngage)},
		GroupControl:  {{Name: "input_int_register_0", Type: TypeInt32, Role: RoleDirection}},
		GroupPositions: {
			dbl(0, 0), dbl(1, 1), dbl(2, 2), dbl(3, 3), dbl(6, 4), dbl(9, 5),
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// MarshalYAML renders recipes in the file format LoadRecipes reads.
func (r *Recipes) MarshalYAML() (any, error) {
	groups := make(map[string][]Field, len(r.groups))
	for name, s := range r.groups {
		groups[name] = s.Fields
	}
	return recipeFile{Groups: groups}, nil
}
