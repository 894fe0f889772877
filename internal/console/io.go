// Package console implements the user I/O contract on a terminal. A
// speech front end would satisfy the same interface with a recognizer and
// a synthesis engine.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "console: listen timed out" }

// Timeout marks the error as a timeout, net-style, so callers can treat
// it as "heard nothing" without importing this package.
func (timeoutError) Timeout() bool { return true }

// ErrTimeout reports that no input arrived within the listen window.
var ErrTimeout error = timeoutError{}

// IO reads lines from in and prints assistant output to out. A single
// reader goroutine feeds a channel so input typed during a timeout is not
// lost for the next Listen call.
type IO struct {
	out     io.Writer
	lines   chan string
	readErr chan error
	timeout time.Duration
}

// New creates an IO over the given reader and writer. timeout bounds each
// Listen call; zero means wait forever.
func New(in io.Reader, out io.Writer, timeout time.Duration) *IO {
	cio := &IO{
		out:     out,
		lines:   make(chan string),
		readErr: make(chan error, 1),
		timeout: timeout,
	}
	go cio.readLoop(in)
	return cio
}

func (c *IO) readLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.readErr <- err
		return
	}
	c.readErr <- io.EOF
}

// Say prints one assistant utterance.
func (c *IO) Say(text string) {
	fmt.Fprintf(c.out, "Assistant: %s\n", text)
}

// Listen blocks for the next input line. It returns ErrTimeout when the
// window elapses and io.EOF when the input stream ends.
func (c *IO) Listen(ctx context.Context) (string, error) {
	fmt.Fprint(c.out, "You: ")

	var timeoutCh <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case line := <-c.lines:
		return line, nil
	case err := <-c.readErr:
		return "", err
	case <-timeoutCh:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
