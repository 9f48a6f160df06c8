package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Console reads decisions line by line from a terminal.
type Console struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

// NewConsole prompts on out and reads answers from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, lines: make(chan string)}
}

// Decide prints the menu and waits for one line. Unrecognised input is
// returned as Invalid so the caller can log it and ask again.
func (c *Console) Decide(ctx context.Context) (Decision, error) {
	c.once.Do(func() { go c.scan() })

	fmt.Fprintf(c.out, "%s > ", Prompt())
	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return Invalid, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return Invalid, ErrClosed
		}
		return Parse(line), nil
	}
}

// scan owns the reader. It stops at EOF; a line nobody is waiting for stays
// pending until the next Decide.
func (c *Console) scan() {
	defer close(c.lines)
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		c.lines <- sc.Text()
	}
}
