// Package remote provides the command-execution and file-manipulation
// capability over a single remote host, behind two interchangeable
// transport strategies: a persistent in-process SSH connection, and
// per-operation invocations of the system ssh binary sharing one
// control connection.
package remote

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind selects the transport strategy. The set is closed and the
// choice is process-wide, resolved once from the environment.
type Kind int

const (
	KindNative Kind = iota
	KindOpenSSH
)

// KindFromEnv resolves the transport choice. The native strategy is
// preferred; MULTIHOST_SSH_TRANSPORT=openssh selects the external
// ssh binary.
func KindFromEnv() Kind {
	if os.Getenv("MULTIHOST_SSH_TRANSPORT") == "openssh" {
		return KindOpenSSH
	}
	return KindNative
}

// Target identifies one remote machine and the credentials to reach
// it.
type Target struct {
	// Name is a short name used in log lines.
	Name string
	// Addr is the address actually used for connecting.
	Addr string
	// Port defaults to 22 when zero.
	Port int

	Username    string
	KeyFilename string
	Password    string
	// HostKey, when set, is the expected host key in authorized_keys
	// format; connections to a host presenting a different key fail.
	HostKey string
}

func (t Target) port() int {
	if t.Port == 0 {
		return 22
	}
	return t.Port
}

// Transport can run commands and manipulate files on one remote host.
type Transport interface {
	// StartShell opens a remote interactive shell. argv is the command
	// the shell is intended to run, used for logging only. If
	// logStdout is false the command's stdout is not logged as it
	// arrives (useful for binary output).
	StartShell(argv string, logStdout bool) (*Command, error)

	// GetFileContents reads the named remote file as raw bytes.
	GetFileContents(filename string) ([]byte, error)
	// PutFileContents writes the given bytes to the named remote file.
	PutFileContents(filename string, contents []byte) error
	// FileExists reports whether the named remote file exists.
	FileExists(filename string) (bool, error)

	Mkdir(dir string) error
	Rmdir(dir string) error
	RemoveFile(filename string) error
	RenameFile(oldpath, newpath string) error

	// GetFile copies a remote file to a local path.
	GetFile(remotepath, localpath string) error
	// PutFile copies a local file to a remote path.
	PutFile(localpath, remotepath string) error

	Close() error
}

// New opens a transport of the given kind to the target.
func New(kind Kind, target Target) (Transport, error) {
	switch kind {
	case KindOpenSSH:
		return newOpenSSHTransport(target)
	default:
		return newNativeTransport(target)
	}
}

// MkdirRecursive creates the named remote directory and any missing
// parents.
func MkdirRecursive(t Transport, dir string) error {
	exists, err := t.FileExists(dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	parent := path.Dir(dir)
	if parent != dir && parent != "." {
		if err := MkdirRecursive(t, parent); err != nil {
			return err
		}
	}
	return t.Mkdir(dir)
}

// commandCounter hands out per-command log names of the form
// <host>.cmdN.
type commandCounter struct {
	n int
}

func (c *commandCounter) next(host string) string {
	c.n++
	return fmt.Sprintf("%s.cmd%d", host, c.n)
}

// expandUser resolves a leading ~ in a local path.
func expandUser(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
