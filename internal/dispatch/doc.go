// Package dispatch runs the print job against the controller.
//
// One Engine owns one controller connection, one task queue and two
// acknowledgment flags. Each cycle it receives a state snapshot, records what
// changed, and then either sends the next task, acknowledges a finished one or
// does nothing.
//
// Command families:
//   - Gantry: background conveyor command, sent and popped immediately.
//   - Home: foreground, gated by the control flag; clears the home flag until
//     the controller reports homed.
//   - Control: foreground print pass, gated by both flags and an idle
//     controller; clears the control flag until the controller reports the
//     pass done.
//
// A halted controller program suspends dispatch. The engine asks a
// DecisionSource what to do, writes the matching internal bits and polls until
// the program runs again.
//
// Cancelling the run context drains the engine: no new task is sent, the
// outstanding pass or homing is acknowledged, then Run returns. The caller
// closes the link.
package dispatch
