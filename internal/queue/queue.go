package queue

import (
	"errors"

	"github.com/mattjoyce/portmark/internal/task"
)

const minCapacity = 8

// ErrEmptyQueue is returned by Pop on an empty queue. Callers must Peek first;
// seeing this error means the dispatcher broke its own invariant.
var ErrEmptyQueue = errors.New("pop from empty task queue")

// Queue is a FIFO of tasks backed by a growable ring buffer.
// It is not safe for concurrent use; the dispatcher owns it exclusively.
type Queue struct {
	buf   []task.Task
	head  int
	count int
}

// New creates a queue holding tasks in order.
func New(tasks ...task.Task) *Queue {
	q := &Queue{}
	for _, t := range tasks {
		q.Append(t)
	}
	return q
}

// Append adds t at the back.
func (q *Queue) Append(t task.Task) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = t
	q.count++
}

// Peek returns the front task without removing it.
func (q *Queue) Peek() (task.Task, bool) {
	if q.count == 0 {
		return nil, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the front task.
func (q *Queue) Pop() (task.Task, error) {
	if q.count == 0 {
		return nil, ErrEmptyQueue
	}
	t := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return t, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int { return q.count }

// IsEmpty reports whether the queue holds no tasks.
func (q *Queue) IsEmpty() bool { return q.count == 0 }

// Snapshot copies the queued tasks front to back.
func (q *Queue) Snapshot() []task.Task {
	out := make([]task.Task, q.count)
	for i := range q.count {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}

func (q *Queue) grow() {
	size := len(q.buf) * 2
	if size < minCapacity {
		size = minCapacity
	}
	buf := make([]task.Task, size)
	for i := range q.count {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
