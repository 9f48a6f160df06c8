package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/task"
)

// Session drives a Link with typed commands.
type Session struct {
	link    Link
	codec   *protocol.Codec
	logger  *slog.Logger
	handles map[string]Handle
	started bool
}

// NewSession binds a link to a codec. Call Open before anything else.
func NewSession(l Link, codec *protocol.Codec, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		link:    l,
		codec:   codec,
		logger:  logger,
		handles: make(map[string]Handle, len(protocol.InputGroups)),
	}
}

// Open connects, negotiates every group, starts synchronisation and primes the
// foreground registers to their idle values. A failure after Connect pauses
// (when started) and disconnects before returning.
func (s *Session) Open(ctx context.Context) error {
	if err := s.link.Connect(ctx); err != nil {
		return fmt.Errorf("%w: connect: %v", ErrConnectionLost, err)
	}
	if err := s.negotiate(ctx); err != nil {
		return errors.Join(err, s.abort(ctx))
	}
	return nil
}

func (s *Session) negotiate(ctx context.Context) error {
	if err := s.link.ConfigureOutput(ctx, s.codec.Group(protocol.GroupState)); err != nil {
		return fmt.Errorf("configure %s: %w", protocol.GroupState, err)
	}
	for _, name := range protocol.InputGroups {
		h, err := s.link.ConfigureInput(ctx, s.codec.Group(name))
		if err != nil {
			return fmt.Errorf("configure %s: %w", name, err)
		}
		s.handles[name] = h
	}

	if err := s.link.Start(ctx); err != nil {
		return fmt.Errorf("%w: start synchronisation: %v", ErrConnectionLost, err)
	}
	s.started = true
	s.logger.Info("register link started", "input_groups", len(s.handles))

	if err := s.send(ctx, protocol.GroupPositions, s.codec.EncodePose(task.Pose{})); err != nil {
		return err
	}
	return s.Quiesce(ctx)
}

// abort tears down a half-open link without touching the registers.
func (s *Session) abort(ctx context.Context) error {
	var errs []error
	if s.started {
		if err := s.link.Pause(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pause: %w", err))
		}
		s.started = false
	}
	if err := s.link.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	s.logger.Warn("register link open failed; disconnected")
	return errors.Join(errs...)
}

// Receive returns the next decoded state snapshot.
func (s *Session) Receive(ctx context.Context) (protocol.Snapshot, error) {
	v, err := s.link.Receive(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Snapshot{}, ctxErr
		}
		return protocol.Snapshot{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	snap, err := s.codec.DecodeState(v)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

// SendGantry writes the conveyor group.
func (s *Session) SendGantry(ctx context.Context, g task.Gantry) error {
	return s.send(ctx, protocol.GroupGantry, s.codec.EncodeGantry(g))
}

// SendHome writes the home-engage bit.
func (s *Session) SendHome(ctx context.Context, engage bool) error {
	return s.send(ctx, protocol.GroupHome, s.codec.EncodeHome(engage))
}

// SendControl writes the pose registers and then the direction register. The
// controller latches both at its next cycle boundary, so the order is fixed.
func (s *Session) SendControl(ctx context.Context, c task.Control) error {
	dir, err := s.codec.EncodeDirection(c.Direction)
	if err != nil {
		return err
	}
	if err := s.send(ctx, protocol.GroupPositions, s.codec.EncodePose(c.Pose)); err != nil {
		return err
	}
	return s.send(ctx, protocol.GroupControl, dir)
}

// ClearControl writes the idle direction code.
func (s *Session) ClearControl(ctx context.Context) error {
	return s.send(ctx, protocol.GroupControl, s.codec.EncodeControlClear())
}

// SendInternal writes the resume/restart bits.
func (s *Session) SendInternal(ctx context.Context, bits protocol.InternalBits) error {
	return s.send(ctx, protocol.GroupInternal, s.codec.EncodeInternal(bits))
}

// Quiesce drives the internal, home and control registers to idle.
func (s *Session) Quiesce(ctx context.Context) error {
	return errors.Join(
		s.SendInternal(ctx, protocol.InternalBits{}),
		s.SendHome(ctx, false),
		s.ClearControl(ctx),
	)
}

// Close quiesces the registers, pauses synchronisation and disconnects.
// It attempts every step and reports all failures.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.started {
		if err := s.Quiesce(ctx); err != nil {
			errs = append(errs, fmt.Errorf("quiesce: %w", err))
		}
		if err := s.link.Pause(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pause: %w", err))
		}
		s.started = false
	}
	if err := s.link.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	s.logger.Info("register link closed")
	return errors.Join(errs...)
}

func (s *Session) send(ctx context.Context, group string, v protocol.Values) error {
	h, ok := s.handles[group]
	if !ok {
		return fmt.Errorf("send %s: group not configured", group)
	}
	if err := s.link.Send(ctx, h, v); err != nil {
		return fmt.Errorf("send %s: %w", group, err)
	}
	s.logger.Debug("registers sent", "group", group)
	return nil
}
