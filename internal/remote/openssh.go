package remote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// OpenSSHTransport shells out to the system ssh binary for every
// operation. One long-lived control master process establishes a
// connection-multiplexing socket and seeds the scratch known_hosts
// file, so per-operation invocations reuse the authenticated channel
// instead of renegotiating. Only public-key authentication is
// supported.
type OpenSSHTransport struct {
	target       Target
	controlDir   string
	sshArgv      []string
	control      *exec.Cmd
	controlStdin io.WriteCloser
	names        commandCounter
}

func newOpenSSHTransport(target Target) (*OpenSSHTransport, error) {
	if target.KeyFilename == "" {
		if target.Password != "" {
			log.Printf("%s: password authentication not supported by the openssh transport",
				target.Name)
		}
		return nil, fmt.Errorf("%s: %w", target.Name, ErrCredentials)
	}
	keyPath, err := expandUser(target.KeyFilename)
	if err != nil {
		return nil, err
	}

	controlDir, err := os.MkdirTemp("", "multihost_tests.")
	if err != nil {
		return nil, err
	}

	t := &OpenSSHTransport{
		target:     target,
		controlDir: controlDir,
		sshArgv: []string{
			"ssh",
			"-l", target.Username,
			"-p", strconv.Itoa(target.port()),
			"-o", "ControlPath=" + filepath.Join(controlDir, "control"),
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=" + filepath.Join(controlDir, "known_hosts"),
			"-i", keyPath,
			target.Addr,
		},
	}
	log.Printf("%s: SSH invocation: %v", target.Name, t.sshArgv)

	// The control master holds the shared connection open and writes
	// the host to known_hosts, so real sessions don't renegotiate and
	// their stderr stays free of the unknown-host warning. It exits
	// when its stdin pipe is closed.
	args := append(append([]string(nil), t.sshArgv[1:]...), "-o", "ControlMaster=yes", "/usr/bin/cat")
	ctl := exec.Command(t.sshArgv[0], args...)
	stdin, err := ctl.StdinPipe()
	if err != nil {
		os.RemoveAll(controlDir)
		return nil, err
	}
	ctl.Stdout = io.Discard
	ctl.Stderr = io.Discard
	if err := ctl.Start(); err != nil {
		os.RemoveAll(controlDir)
		return nil, fmt.Errorf("start SSH control master for %s: %w", target.Name, err)
	}
	t.control = ctl
	t.controlStdin = stdin

	return t, nil
}

// run invokes the ssh binary with the given remote command appended to
// the common invocation. logArgv is what gets logged and attached to
// the resulting Command.
func (t *OpenSSHTransport) run(command []string, logArgv string, logStdout bool) (*Command, error) {
	args := append(append([]string(nil), t.sshArgv[1:]...), command...)
	cmd := exec.Command(t.sshArgv[0], args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("invoke ssh for %s: %w", t.target.Name, err)
	}
	return newCommand(&execShell{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr},
		logArgv, t.names.next(t.target.Name), logStdout), nil
}

func (t *OpenSSHTransport) StartShell(argv string, logStdout bool) (*Command, error) {
	log.Printf("%s: RUN %s", t.target.Name, argv)
	return t.run([]string{"bash"}, argv, logStdout)
}

func (t *OpenSSHTransport) GetFileContents(filename string) ([]byte, error) {
	log.Printf("%s: GET %s", t.target.Name, filename)
	cmd, err := t.run([]string{"cat", filename}, "cat "+filename, false)
	if err != nil {
		return nil, err
	}
	cmd.RaiseOnErr = false
	rc, err := cmd.Wait()
	if err != nil {
		return nil, &IOError{Op: "read", Path: filename, Err: err}
	}
	if rc != 0 {
		return nil, ioErrorf("read", filename, "exit code %d", rc)
	}
	return cmd.StdoutBytes(), nil
}

func (t *OpenSSHTransport) PutFileContents(filename string, contents []byte) error {
	log.Printf("%s: PUT %s", t.target.Name, filename)
	cmd, err := t.run([]string{"tee", filename}, "tee "+filename, false)
	if err != nil {
		return err
	}
	if _, err := cmd.Stdin.Write(contents); err != nil {
		return &IOError{Op: "write", Path: filename, Err: err}
	}
	cmd.RaiseOnErr = false
	rc, err := cmd.Wait()
	if err != nil {
		return &IOError{Op: "write", Path: filename, Err: err}
	}
	if rc != 0 {
		return ioErrorf("write", filename, "exit code %d", rc)
	}
	// tee echoes what it wrote; a mismatch means the write was cut
	// short.
	if !bytes.Equal(cmd.StdoutBytes(), contents) {
		return ioErrorf("write", filename, "readback mismatch: wrote %d bytes, got %d back",
			len(contents), len(cmd.StdoutBytes()))
	}
	return nil
}

func (t *OpenSSHTransport) FileExists(filename string) (bool, error) {
	log.Printf("%s: STAT %s", t.target.Name, filename)
	cmd, err := t.run([]string{"ls", filename}, "ls "+filename, false)
	if err != nil {
		return false, err
	}
	cmd.RaiseOnErr = false
	rc, err := cmd.Wait()
	if err != nil {
		return false, &IOError{Op: "stat", Path: filename, Err: err}
	}
	return rc == 0, nil
}

func (t *OpenSSHTransport) Mkdir(dir string) error {
	log.Printf("%s: MKDIR %s", t.target.Name, dir)
	return t.runQuiet("mkdir", dir, []string{"mkdir", dir})
}

func (t *OpenSSHTransport) Rmdir(dir string) error {
	log.Printf("%s: RMDIR %s", t.target.Name, dir)
	return t.runQuiet("rmdir", dir, []string{"rmdir", dir})
}

func (t *OpenSSHTransport) RemoveFile(filename string) error {
	log.Printf("%s: REMOVE %s", t.target.Name, filename)
	return t.runQuiet("remove", filename, []string{"rm", filename})
}

func (t *OpenSSHTransport) RenameFile(oldpath, newpath string) error {
	log.Printf("%s: RENAME %s to %s", t.target.Name, oldpath, newpath)
	return t.runQuiet("rename", oldpath, []string{"mv", oldpath, newpath})
}

// runQuiet runs one file-manipulation command and maps a nonzero exit
// to an IOError.
func (t *OpenSSHTransport) runQuiet(op, path string, command []string) error {
	cmd, err := t.run(command, command[0]+" "+path, true)
	if err != nil {
		return err
	}
	cmd.RaiseOnErr = false
	rc, err := cmd.Wait()
	if err != nil {
		return &IOError{Op: op, Path: path, Err: err}
	}
	if rc != 0 {
		return ioErrorf(op, path, "exit code %d", rc)
	}
	return nil
}

func (t *OpenSSHTransport) GetFile(remotepath, localpath string) error {
	contents, err := t.GetFileContents(remotepath)
	if err != nil {
		return err
	}
	return os.WriteFile(localpath, contents, 0644)
}

func (t *OpenSSHTransport) PutFile(localpath, remotepath string) error {
	contents, err := os.ReadFile(localpath)
	if err != nil {
		return err
	}
	return t.PutFileContents(remotepath, contents)
}

func (t *OpenSSHTransport) Close() error {
	if t.controlStdin != nil {
		t.controlStdin.Close()
		t.controlStdin = nil
	}
	if t.control != nil {
		t.control.Wait()
		t.control = nil
	}
	if t.controlDir != "" {
		os.RemoveAll(t.controlDir)
		t.controlDir = ""
	}
	return nil
}

// execShell adapts a started exec.Cmd to the shell interface.
type execShell struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (s *execShell) Stdin() io.WriteCloser { return s.stdin }
func (s *execShell) Stdout() io.Reader     { return s.stdout }
func (s *execShell) Stderr() io.Reader     { return s.stderr }

func (s *execShell) ExitStatus() (int, error) {
	err := s.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

func (s *execShell) Close() error {
	return nil
}
