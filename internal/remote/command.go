package remote

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"
)

// shell is the minimal channel surface a Command drives: a byte sink
// for stdin, byte streams for stdout and stderr, and the remote exit
// status, which blocks until the remote process has exited.
type shell interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	ExitStatus() (int, error)
	Close() error
}

// Command represents one in-flight or completed remote invocation.
//
// Stdout and stderr are drained by two concurrent reader goroutines
// from the moment the shell channel opens; draining them sequentially
// could deadlock if the remote process fills one stream's buffer while
// blocked writing to the other. The buffered output becomes available
// after Wait.
type Command struct {
	// Argv is the invoked command, kept for logging and errors.
	Argv string
	// Stdin is the byte sink feeding the remote shell.
	Stdin io.WriteCloser
	// RaiseOnErr controls whether Wait fails on nonzero exit.
	RaiseOnErr bool

	name string
	sh   shell
	wg   sync.WaitGroup

	stdoutLines [][]byte
	stderrLines [][]byte

	done       bool
	collected  bool
	returncode int

	stdoutBytes []byte
	stderrBytes []byte

	stdoutText *string
	stderrText *string
}

// newCommand adapts an opened shell channel into a Command and starts
// the two drain goroutines. Stderr is always logged line by line;
// stdout logging is caller-toggleable.
func newCommand(sh shell, argv, name string, logStdout bool) *Command {
	c := &Command{
		Argv:       argv,
		Stdin:      sh.Stdin(),
		RaiseOnErr: true,
		name:       name,
		sh:         sh,
	}
	c.drain(&c.stdoutLines, sh.Stdout(), "out", logStdout)
	c.drain(&c.stderrLines, sh.Stderr(), "err", true)
	return c
}

// drain copies lines from stream into dst until end-of-stream. The
// slice is owned by the goroutine until Wait joins it.
func (c *Command) drain(dst *[][]byte, stream io.Reader, label string, logLines bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		r := bufio.NewReader(stream)
		for {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				if logLines {
					log.Printf("%s [%s] %s", c.name, label, bytes.TrimRight(line, "\n"))
				}
				*dst = append(*dst, line)
			}
			if err != nil {
				return
			}
		}
	}()
}

// Wait closes stdin, blocks until both drain goroutines observe
// end-of-stream, collects the final output buffers and the remote exit
// status, and marks the command done. A nonzero exit status is an
// ExitError unless RaiseOnErr was cleared. Calling Wait again is a
// no-op returning the cached exit code.
func (c *Command) Wait() (int, error) {
	if c.done {
		return c.returncode, nil
	}

	c.Stdin.Close()
	c.wg.Wait()

	// Collected exactly once; a retried Wait after an exit-status
	// failure must not clobber the buffers.
	if !c.collected {
		c.stdoutBytes = bytes.Join(c.stdoutLines, nil)
		c.stderrBytes = bytes.Join(c.stderrLines, nil)
		c.stdoutLines = nil
		c.stderrLines = nil
		c.collected = true
	}

	rc, err := c.sh.ExitStatus()
	c.sh.Close()
	if err != nil {
		return 0, fmt.Errorf("command %q: %w", c.Argv, err)
	}
	c.returncode = rc
	c.done = true

	if c.RaiseOnErr && rc != 0 {
		log.Printf("%s: exit code %d", c.name, rc)
		return rc, &ExitError{Argv: c.Argv, Code: rc}
	}
	log.Printf("%s: exit code %d", c.name, rc)
	return rc, nil
}

// Close waits for the command to finish, honoring RaiseOnErr. It lets
// a background Command be scoped with defer so the drain goroutines
// and the remote shell are always reaped.
func (c *Command) Close() error {
	_, err := c.Wait()
	return err
}

// Done reports whether Wait has completed.
func (c *Command) Done() bool {
	return c.done
}

// ReturnCode is the remote exit status; valid only after Wait.
func (c *Command) ReturnCode() int {
	return c.returncode
}

// StdoutBytes is the complete standard output; valid only after Wait.
func (c *Command) StdoutBytes() []byte {
	return c.stdoutBytes
}

// StderrBytes is the complete standard error; valid only after Wait.
func (c *Command) StderrBytes() []byte {
	return c.stderrBytes
}

// StdoutText is the decoded standard output, computed on first access
// and cached. Do not use on binary output.
func (c *Command) StdoutText() string {
	if c.stdoutText == nil {
		s := string(c.stdoutBytes)
		c.stdoutText = &s
	}
	return *c.stdoutText
}

// StderrText is the decoded standard error, computed on first access
// and cached.
func (c *Command) StderrText() string {
	if c.stderrText == nil {
		s := string(c.stderrBytes)
		c.stderrText = &s
	}
	return *c.stderrText
}
