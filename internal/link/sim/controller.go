// Package sim is an in-memory controller that speaks the register link
// contract. It runs the same handshake as the controller program on the line:
// a non-zero direction code starts a print pass, the controller reports the
// pass as current and active, then done, and waits for the host to clear the
// code before returning to idle.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattjoyce/portmark/internal/link"
	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/task"
)

// Sent is one register update received from the host.
type Sent struct {
	Cycle  int
	Group  string
	Values protocol.Values
}

// Option configures a Controller.
type Option func(*Controller)

// WithCycleTime paces Receive like a real controller. Zero runs flat out.
func WithCycleTime(d time.Duration) Option {
	return func(c *Controller) { c.cycleTime = d }
}

// WithPassCycles sets how many cycles a print pass stays active.
func WithPassCycles(n int) Option {
	return func(c *Controller) { c.passCycles = n }
}

// WithHomeCycles sets how many cycles homing takes.
func WithHomeCycles(n int) Option {
	return func(c *Controller) { c.homeCycles = n }
}

// WithHaltAt stops the controller program at the given cycle, as a protective
// stop would. The program resumes once the host sets resume or restart.
func WithHaltAt(cycles ...int) Option {
	return func(c *Controller) {
		for _, n := range cycles {
			c.haltAt[n] = true
		}
	}
}

// WithDropAt makes Receive fail from the given cycle onward.
func WithDropAt(cycle int) Option {
	return func(c *Controller) { c.dropAt = cycle }
}

// Controller simulates the controller side of the register link.
type Controller struct {
	codec      *protocol.Codec
	cycleTime  time.Duration
	passCycles int
	homeCycles int
	haltAt     map[int]bool
	dropAt     int

	mu         sync.Mutex
	connected  bool
	running    bool
	output     *protocol.Schema
	groups     map[link.Handle]string
	inputs     map[string]protocol.Values
	sent       []Sent
	cycle      int
	state      protocol.Snapshot
	passLeft   int
	homeLeft   int
	activePose [6]float64
}

// New creates a simulated controller using the codec's register layout.
func New(codec *protocol.Codec, opts ...Option) *Controller {
	c := &Controller{
		codec:      codec,
		passCycles: 5,
		homeCycles: 3,
		haltAt:     make(map[int]bool),
		groups:     make(map[link.Handle]string),
		inputs:     make(map[string]protocol.Values),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.ProgramRunning = true
	return c
}

var _ link.Link = (*Controller)(nil)

func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *Controller) ConfigureOutput(ctx context.Context, schema protocol.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return link.ErrClosed
	}
	if schema.Name != protocol.GroupState {
		return fmt.Errorf("output group must be %q, got %q", protocol.GroupState, schema.Name)
	}
	c.output = &schema
	return nil
}

func (c *Controller) ConfigureInput(ctx context.Context, schema protocol.Schema) (link.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return 0, link.ErrClosed
	}
	h := link.Handle(len(c.groups) + 1)
	c.groups[h] = schema.Name
	return h, nil
}

func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.output == nil {
		return fmt.Errorf("start before output group configured: %w", link.ErrClosed)
	}
	c.running = true
	return nil
}

func (c *Controller) Send(ctx context.Context, h link.Handle, values protocol.Values) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return link.ErrClosed
	}
	group, ok := c.groups[h]
	if !ok {
		return fmt.Errorf("unknown input handle %d", h)
	}
	c.inputs[group] = values
	c.sent = append(c.sent, Sent{Cycle: c.cycle, Group: group, Values: values})
	return nil
}

// Receive advances the controller one cycle and returns the new state frame.
func (c *Controller) Receive(ctx context.Context) (protocol.Values, error) {
	if c.cycleTime > 0 {
		t := time.NewTimer(c.cycleTime)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || !c.running {
		return nil, link.ErrClosed
	}
	c.cycle++
	if c.dropAt > 0 && c.cycle >= c.dropAt {
		c.connected = false
		return nil, link.ErrClosed
	}
	c.step()
	return c.codec.EncodeState(c.state), nil
}

func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.running = false
	return nil
}

// Sent returns every register update received so far.
func (c *Controller) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// State returns the controller's current status.
func (c *Controller) State() protocol.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cycle returns the number of frames produced.
func (c *Controller) Cycle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle
}

func (c *Controller) step() {
	s := &c.state

	if c.haltAt[c.cycle] {
		s.ProgramRunning = false
		s.Printing = false
	}
	if !s.ProgramRunning {
		c.stepHalted()
		c.updateTelemetry()
		return
	}

	c.stepControl()
	c.stepHome()
	c.updateTelemetry()
}

func (c *Controller) stepHalted() {
	resume := c.bit(protocol.GroupInternal, protocol.RoleResume)
	restart := c.bit(protocol.GroupInternal, protocol.RoleRestart)
	switch {
	case restart:
		c.state = protocol.Snapshot{ProgramRunning: true}
		c.passLeft, c.homeLeft = 0, 0
		if c.bit(protocol.GroupHome, protocol.RoleEngage) {
			c.homeLeft = c.homeCycles
		}
	case resume:
		c.state.ProgramRunning = true
		c.state.Printing = c.state.TaskActive
	}
}

func (c *Controller) stepControl() {
	s := &c.state
	code := c.int(protocol.GroupControl, protocol.RoleDirection)

	switch {
	case s.TaskActive:
		c.passLeft--
		if c.passLeft <= 0 {
			s.TaskActive = false
			s.TaskDone = true
			s.Printing = false
		}
	case s.CurrentTask == protocol.NoTask && code != protocol.NoTask && c.homeLeft == 0:
		s.CurrentTask = code
		s.TaskActive = true
		s.TaskDone = false
		s.Printing = true
		c.passLeft = c.passCycles
		for i := range c.activePose {
			c.activePose[i] = c.float(protocol.GroupPositions, protocol.PoseRole(i))
		}
	case s.CurrentTask != protocol.NoTask && code == protocol.NoTask:
		s.CurrentTask = protocol.NoTask
		s.TaskDone = false
	}
}

func (c *Controller) stepHome() {
	s := &c.state
	engage := c.bit(protocol.GroupHome, protocol.RoleEngage)

	switch {
	case !engage:
		s.Homed = false
		c.homeLeft = 0
	case s.Homed:
	case c.homeLeft == 0 && !s.TaskActive:
		c.homeLeft = c.homeCycles
	case c.homeLeft > 0:
		c.homeLeft--
		if c.homeLeft == 0 {
			s.Homed = true
			c.activePose = [6]float64{}
		}
	}
}

// updateTelemetry sweeps the head across the active pose while printing.
func (c *Controller) updateTelemetry() {
	s := &c.state
	prev := s.Telemetry.TCPPose

	x, y, z := prev[0], prev[1], prev[2]
	if s.TaskActive && c.passCycles > 0 {
		done := float64(c.passCycles-c.passLeft) / float64(c.passCycles)
		from, to := c.activePose[0], c.activePose[2]
		if dir, _ := protocol.DirectionFromCode(s.CurrentTask); dir == task.RightToLeft {
			from, to = to, from
		}
		x = from + (to-from)*done
		y = c.activePose[3]
		z = c.activePose[4]
	} else if s.Homed {
		x, y, z = 0, 0, c.activePose[5]
	}

	s.Telemetry.TCPPose = [6]float64{x, y, z, 0, 3.14159, 0}
	s.Telemetry.TCPSpeed = [6]float64{x - prev[0], y - prev[1], z - prev[2], 0, 0, 0}
	s.Telemetry.TargetTCPSpeed = s.Telemetry.TCPSpeed
	s.Telemetry.JointAngles = [6]float64{x, y, z, 0, 0, 0}
}

func (c *Controller) field(group string, role protocol.Role) (any, bool) {
	f, ok := c.codec.Group(group).Field(role)
	if !ok {
		return nil, false
	}
	v, ok := c.inputs[group][f.Name]
	return v, ok
}

func (c *Controller) bit(group string, role protocol.Role) bool {
	v, _ := c.field(group, role)
	b, _ := v.(bool)
	return b
}

func (c *Controller) int(group string, role protocol.Role) int {
	v, _ := c.field(group, role)
	n, _ := v.(int32)
	return int(n)
}

func (c *Controller) float(group string, role protocol.Role) float64 {
	v, _ := c.field(group, role)
	f, _ := v.(float64)
	return f
}
