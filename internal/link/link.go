// Package link is the boundary to the register-exchange transport.
//
// Link is the raw, schema-driven contract a transport implements: connect,
// negotiate one output group and several input groups, start cyclic
// synchronisation, then receive one state frame per controller cycle and send
// input group updates. Session layers the protocol codec on top so callers
// deal in snapshots and tasks rather than field names.
package link

import (
	"context"
	"errors"

	"github.com/mattjoyce/portmark/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_link.go -package=mocks github.com/mattjoyce/portmark/internal/link Link

var (
	// ErrClosed is returned by a Link once the connection is gone.
	ErrClosed = errors.New("link closed")

	// ErrConnectionLost is fatal: the controller can no longer be trusted to
	// be in a known state, so nothing is retried.
	ErrConnectionLost = errors.New("connection lost")
)

// Handle identifies a configured input group.
type Handle int

// Link is the register-exchange transport.
type Link interface {
	Connect(ctx context.Context) error
	ConfigureOutput(ctx context.Context, schema protocol.Schema) error
	ConfigureInput(ctx context.Context, schema protocol.Schema) (Handle, error)
	Start(ctx context.Context) error
	// Receive blocks until the next state frame. It returns ErrClosed (or a
	// wrapped transport error) when no frame will arrive.
	Receive(ctx context.Context) (protocol.Values, error)
	Send(ctx context.Context, h Handle, values protocol.Values) error
	Pause(ctx context.Context) error
	Disconnect() error
}
