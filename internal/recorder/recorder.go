// Package recorder stores decimated telemetry samples taken during a run.
package recorder

import "github.com/mattjoyce/portmark/internal/protocol"

// Header is the column layout shared by every sink.
var Header = []string{
	"x", "y", "z", "rx", "ry", "rz",
	"q1", "q2", "q3", "q4", "q5", "q6",
	"vx", "vy", "vz", "wx", "wy", "wz",
	"vx_t", "vy_t", "vz_t", "wx_t", "wy_t", "wz_t",
	"print",
}

// Sample is one recorded cycle.
type Sample struct {
	Cycle     int
	Telemetry protocol.Telemetry
	Printing  bool
}

// Values returns the numeric columns of s in Header order, without print.
func (s Sample) Values() []float64 {
	t := s.Telemetry
	out := make([]float64, 0, len(Header)-1)
	out = append(out, t.TCPPose[:]...)
	out = append(out, t.JointAngles[:]...)
	out = append(out, t.TCPSpeed[:]...)
	out = append(out, t.TargetTCPSpeed[:]...)
	return out
}

// Recorder is a telemetry sink. Record may buffer; Close flushes.
type Recorder interface {
	Record(s Sample) error
	Flush() error
	Close() error
}

// Discard records nothing.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Sample) error { return nil }
func (discard) Flush() error        { return nil }
func (discard) Close() error        { return nil }
