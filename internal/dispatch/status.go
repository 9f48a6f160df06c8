package dispatch

import "github.com/mattjoyce/portmark/internal/task"

// Status is a point-in-time copy of engine state for other goroutines.
type Status struct {
	Cycle      int      `json:"cycle"`
	Queued     int      `json:"queued"`
	Next       string   `json:"next,omitempty"`
	Dispatched int      `json:"dispatched"`
	Acks       AckState `json:"acks"`
	Observed   Observed `json:"observed"`
	Halted     bool     `json:"halted"`
	Draining   bool     `json:"draining"`
}

// Status is safe to call from any goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Pending returns the queued tasks in dispatch order. Safe from any goroutine.
func (e *Engine) Pending() []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]task.Task(nil), e.pending...)
}

func (e *Engine) publishStatus(halted bool) {
	st := Status{
		Cycle:      e.cycle,
		Queued:     e.queue.Len(),
		Dispatched: e.dispatched,
		Acks:       e.ack,
		Observed:   e.observed,
		Halted:     halted,
		Draining:   e.draining,
	}
	if t, ok := e.queue.Peek(); ok {
		st.Next = t.String()
	}
	pending := e.queue.Snapshot()

	e.mu.Lock()
	e.status = st
	e.pending = pending
	e.mu.Unlock()
}
