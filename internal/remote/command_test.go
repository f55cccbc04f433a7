package remote

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

// fakeShell satisfies the shell interface with in-memory streams.
type fakeShell struct {
	stdin  *closeBuffer
	stdout io.Reader
	stderr io.Reader
	code   int
	err    error
	closed bool
}

func newFakeShell(stdout, stderr string, code int) *fakeShell {
	return &fakeShell{
		stdin:  &closeBuffer{},
		stdout: strings.NewReader(stdout),
		stderr: strings.NewReader(stderr),
		code:   code,
	}
}

func (s *fakeShell) Stdin() io.WriteCloser    { return s.stdin }
func (s *fakeShell) Stdout() io.Reader        { return s.stdout }
func (s *fakeShell) Stderr() io.Reader        { return s.stderr }
func (s *fakeShell) ExitStatus() (int, error) { return s.code, s.err }
func (s *fakeShell) Close() error             { s.closed = true; return nil }

func TestCommandWait(t *testing.T) {
	sh := newFakeShell("line one\nline two\n", "warning\n", 0)
	c := newCommand(sh, "echo test", "host.cmd1", true)

	rc, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rc != 0 {
		t.Errorf("rc = %d", rc)
	}
	if !c.Done() {
		t.Error("Done() = false after Wait")
	}
	if got := string(c.StdoutBytes()); got != "line one\nline two\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := string(c.StderrBytes()); got != "warning\n" {
		t.Errorf("stderr = %q", got)
	}
	if !sh.stdin.closed {
		t.Error("Wait did not close stdin")
	}
	if !sh.closed {
		t.Error("Wait did not close the shell channel")
	}
}

func TestCommandExitError(t *testing.T) {
	sh := newFakeShell("", "boom\n", 3)
	c := newCommand(sh, "false", "host.cmd1", true)

	rc, err := c.Wait()
	if rc != 3 {
		t.Errorf("rc = %d, want 3", rc)
	}
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if ee.Code != 3 || ee.Argv != "false" {
		t.Errorf("ExitError = %+v", ee)
	}

	// A repeated Wait is a cached no-op.
	rc, err = c.Wait()
	if rc != 3 || err != nil {
		t.Errorf("second Wait = %d, %v", rc, err)
	}
}

func TestCommandNoRaiseOnError(t *testing.T) {
	sh := newFakeShell("", "", 1)
	c := newCommand(sh, "false", "host.cmd1", true)
	c.RaiseOnErr = false

	rc, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rc != 1 || c.ReturnCode() != 1 {
		t.Errorf("rc = %d, ReturnCode = %d", rc, c.ReturnCode())
	}
}

// An exit-status failure leaves the command retryable; the output
// buffers collected on the first attempt must survive the retry.
func TestCommandWaitRetryKeepsOutput(t *testing.T) {
	sh := newFakeShell("kept\n", "", 0)
	sh.err = errors.New("session torn down")
	c := newCommand(sh, "echo kept", "host.cmd1", true)

	if _, err := c.Wait(); err == nil {
		t.Fatal("expected exit-status error")
	}
	if c.Done() {
		t.Error("Done() = true after failed Wait")
	}

	sh.err = nil
	rc, err := c.Wait()
	if err != nil {
		t.Fatalf("retried Wait: %v", err)
	}
	if rc != 0 {
		t.Errorf("rc = %d", rc)
	}
	if got := string(c.StdoutBytes()); got != "kept\n" {
		t.Errorf("stdout after retry = %q", got)
	}
}

func TestCommandNoTrailingNewline(t *testing.T) {
	sh := newFakeShell("no newline at end", "", 0)
	c := newCommand(sh, "printf", "host.cmd1", true)
	if _, err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := string(c.StdoutBytes()); got != "no newline at end" {
		t.Errorf("stdout = %q", got)
	}
}

func TestCommandTextCached(t *testing.T) {
	sh := newFakeShell("out\n", "err\n", 0)
	c := newCommand(sh, "echo", "host.cmd1", true)
	if _, err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if c.StdoutText() != "out\n" || c.StdoutText() != "out\n" {
		t.Errorf("StdoutText = %q", c.StdoutText())
	}
	if c.StderrText() != "err\n" {
		t.Errorf("StderrText = %q", c.StderrText())
	}
}

func TestCommandClose(t *testing.T) {
	sh := newFakeShell("", "", 2)
	c := newCommand(sh, "false", "host.cmd1", true)
	err := c.Close()
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Close = %v, want ExitError", err)
	}
}

type failWriter struct {
	closed bool
}

func (w *failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func (w *failWriter) Close() error {
	w.closed = true
	return nil
}

// A caller abandoning a command after a failed stdin write reaps it
// with Close: drains joined, shell channel released, no exit raise.
func TestCommandCloseAfterFailedStdinWrite(t *testing.T) {
	stdin := &failWriter{}
	sh := &fakeShell{
		stdin:  &closeBuffer{},
		stdout: strings.NewReader(""),
		stderr: strings.NewReader(""),
		code:   1,
	}
	c := newCommand(sh, "true", "host.cmd1", true)
	c.Stdin = stdin

	if _, err := c.Stdin.Write([]byte("payload")); err == nil {
		t.Fatal("expected write error")
	}
	c.RaiseOnErr = false
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !stdin.closed {
		t.Error("Close did not close stdin")
	}
	if !sh.closed {
		t.Error("Close did not close the shell channel")
	}
	if !c.Done() {
		t.Error("Done() = false after Close")
	}
}

// A process writing a large burst to one stream while the other is
// still open must not wedge; the two streams are drained concurrently.
func TestCommandConcurrentDrain(t *testing.T) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	sh := &fakeShell{stdin: &closeBuffer{}, stdout: outR, stderr: errR}

	c := newCommand(sh, "burst", "host.cmd1", false)

	go func() {
		chunk := bytes.Repeat([]byte("e"), 8*1024)
		errW.Write(append(chunk, '\n'))
		errW.Close()
		outW.Write([]byte("done\n"))
		outW.Close()
	}()

	rc, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rc != 0 {
		t.Errorf("rc = %d", rc)
	}
	if got := string(c.StdoutBytes()); got != "done\n" {
		t.Errorf("stdout = %q", got)
	}
	if len(c.StderrBytes()) != 8*1024+1 {
		t.Errorf("stderr length = %d", len(c.StderrBytes()))
	}
}
