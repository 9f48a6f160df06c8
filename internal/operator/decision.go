// Package operator collects recovery decisions from a human while the
// controller program is halted.
package operator

import (
	"context"
	"errors"
	"strings"
)

// Decision is the operator's answer to a halted controller.
type Decision int

const (
	Invalid Decision = iota
	// Resume continues the interrupted program where it stopped.
	Resume
	// Restart starts the controller program from the top.
	Restart
	// Home sends the head home and then restarts the program.
	Home
)

// Decisions lists the valid choices in prompt order.
var Decisions = []Decision{Resume, Restart, Home}

// ErrClosed is returned once a source can no longer produce decisions.
var ErrClosed = errors.New("decision source closed")

func (d Decision) String() string {
	switch d {
	case Resume:
		return "resume"
	case Restart:
		return "restart"
	case Home:
		return "home"
	default:
		return "invalid"
	}
}

// Valid reports whether d is one of Decisions.
func (d Decision) Valid() bool {
	return d >= Resume && d <= Home
}

// Parse maps operator input to a Decision. It accepts the menu number or the
// decision name, case-insensitively. Anything else is Invalid.
func Parse(input string) Decision {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "resume":
		return Resume
	case "2", "restart":
		return Restart
	case "3", "home":
		return Home
	default:
		return Invalid
	}
}

// Prompt is the menu shown to the operator.
func Prompt() string {
	var b strings.Builder
	b.WriteString("controller program halted:")
	for i, d := range Decisions {
		b.WriteString(" [")
		b.WriteByte(byte('1' + i))
		b.WriteString("] ")
		b.WriteString(d.String())
	}
	return b.String()
}

// Source produces one decision per call, blocking until the operator answers
// or ctx is done.
type Source interface {
	Decide(ctx context.Context) (Decision, error)
}
