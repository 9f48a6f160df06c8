package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/protocol"
)

// recoverProgram handles a halted controller program. It returns the first snapshot
// with the program running again. ok is false when the operator's answer was
// not a valid decision; nothing is sent in that case.
func (e *Engine) recoverProgram(ctx context.Context) (snap protocol.Snapshot, ok bool, err error) {
	e.publishStatus(true)
	e.logger.Warn("controller program halted", "cycle", e.cycle, "queued", e.queue.Len())
	e.events.Publish(events.RecoveryRequired, map[string]any{"cycle": e.cycle, "prompt": operator.Prompt()})

	if e.opts.Decisions == nil {
		return snap, false, ErrNoDecisionSource
	}

	d, err := e.decide(ctx)
	if err != nil {
		return snap, false, err
	}
	if !d.Valid() {
		e.logger.Warn("operator input rejected", "cycle", e.cycle)
		return snap, false, nil
	}

	e.logger.Info("recovery decided", "decision", d.String())
	e.events.Publish(events.RecoveryDecided, map[string]any{"decision": d.String()})

	if err := e.sendDecision(ctx, d); err != nil {
		return snap, false, err
	}

	snap, err = e.awaitRunning(ctx)
	if err != nil {
		return snap, false, err
	}

	if err := e.ctrl.SendInternal(ctx, protocol.InternalBits{}); err != nil {
		return snap, false, connectionLost(err)
	}
	e.logger.Info("controller program running", "decision", d.String())
	return snap, true, nil
}

func (e *Engine) decide(ctx context.Context) (operator.Decision, error) {
	dctx := ctx
	if e.opts.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, e.opts.DecisionTimeout)
		defer cancel()
	}

	d, err := e.opts.Decisions.Decide(dctx)
	if err == nil {
		return d, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return operator.Invalid, ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return operator.Invalid, fmt.Errorf("%w: no decision within %s", ErrRecoveryTimeout, e.opts.DecisionTimeout)
	}
	return operator.Invalid, fmt.Errorf("recovery decision: %w", err)
}

func (e *Engine) sendDecision(ctx context.Context, d operator.Decision) error {
	var bits protocol.InternalBits
	switch d {
	case operator.Resume:
		bits.Resume = true
	case operator.Restart:
		bits.Restart = true
	case operator.Home:
		if err := e.ctrl.SendHome(ctx, true); err != nil {
			return connectionLost(err)
		}
		e.ack.Home = false
		bits.Restart = true
	}
	if err := e.ctrl.SendInternal(ctx, bits); err != nil {
		return connectionLost(err)
	}
	return nil
}

// awaitRunning polls until the program runs again.
func (e *Engine) awaitRunning(ctx context.Context) (protocol.Snapshot, error) {
	pctx := ctx
	if e.opts.RecoveryTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.opts.RecoveryTimeout)
		defer cancel()
	}

	timer := time.NewTimer(e.opts.PollInterval)
	defer timer.Stop()
	for {
		snap, err := e.ctrl.Receive(pctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return snap, ctxErr
			}
			if pctx.Err() != nil {
				return snap, fmt.Errorf("%w: program not running after %s", ErrRecoveryTimeout, e.opts.RecoveryTimeout)
			}
			return snap, connectionLost(err)
		}
		e.ingest(snap)
		if snap.ProgramRunning {
			return snap, nil
		}

		timer.Reset(e.opts.PollInterval)
		select {
		case <-pctx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return snap, ctxErr
			}
			return snap, fmt.Errorf("%w: program not running after %s", ErrRecoveryTimeout, e.opts.RecoveryTimeout)
		case <-timer.C:
		}
	}
}
