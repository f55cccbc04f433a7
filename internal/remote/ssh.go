package remote

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const connectTimeout = 10 * time.Second

// NativeTransport holds one persistent authenticated SSH connection
// per host and multiplexes shell sessions and SFTP file operations
// over it.
type NativeTransport struct {
	target Target
	client *ssh.Client
	files  *sftp.Client
	names  commandCounter
}

func newNativeTransport(target Target) (*NativeTransport, error) {
	cfg, err := clientConfig(target)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(target.Addr, strconv.Itoa(target.port()))
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}

	return &NativeTransport{
		target: target,
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// clientConfig builds the SSH client configuration from the target's
// credentials: public key first, else password, else fail.
func clientConfig(target Target) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	switch {
	case target.KeyFilename != "":
		keyPath, err := expandUser(target.KeyFilename)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", keyPath, err)
		}
		log.Printf("%s: authenticating with private key as user %s",
			target.Name, target.Username)
		auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case target.Password != "":
		log.Printf("%s: authenticating with password as user %s",
			target.Name, target.Username)
		auth = []ssh.AuthMethod{ssh.Password(target.Password)}
	default:
		return nil, fmt.Errorf("%s: %w", target.Name, ErrCredentials)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if target.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(target.HostKey))
		if err != nil {
			return nil, fmt.Errorf("parse host key for %s: %w", target.Name, err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	}

	return &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         connectTimeout,
	}, nil
}

// sftpClient opens the SFTP subsystem on first use.
func (t *NativeTransport) sftpClient() (*sftp.Client, error) {
	if t.files == nil {
		c, err := sftp.NewClient(t.client)
		if err != nil {
			return nil, fmt.Errorf("open SFTP to %s: %w", t.target.Name, err)
		}
		t.files = c
	}
	return t.files, nil
}

func (t *NativeTransport) StartShell(argv string, logStdout bool) (*Command, error) {
	sess, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session to %s: %w", t.target.Name, err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell on %s: %w", t.target.Name, err)
	}
	log.Printf("%s: RUN %s", t.target.Name, argv)
	return newCommand(&sshShell{sess: sess, stdin: stdin, stdout: stdout, stderr: stderr},
		argv, t.names.next(t.target.Name), logStdout), nil
}

func (t *NativeTransport) GetFileContents(filename string) ([]byte, error) {
	log.Printf("%s: GET %s", t.target.Name, filename)
	c, err := t.sftpClient()
	if err != nil {
		return nil, err
	}
	f, err := c.Open(filename)
	if err != nil {
		return nil, &IOError{Op: "read", Path: filename, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &IOError{Op: "read", Path: filename, Err: err}
	}
	return data, nil
}

func (t *NativeTransport) PutFileContents(filename string, contents []byte) error {
	log.Printf("%s: PUT %s", t.target.Name, filename)
	c, err := t.sftpClient()
	if err != nil {
		return err
	}
	f, err := c.Create(filename)
	if err != nil {
		return &IOError{Op: "write", Path: filename, Err: err}
	}
	if _, err := f.Write(contents); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: filename, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write", Path: filename, Err: err}
	}
	return nil
}

func (t *NativeTransport) FileExists(filename string) (bool, error) {
	log.Printf("%s: STAT %s", t.target.Name, filename)
	c, err := t.sftpClient()
	if err != nil {
		return false, err
	}
	if _, err := c.Stat(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &IOError{Op: "stat", Path: filename, Err: err}
	}
	return true, nil
}

func (t *NativeTransport) Mkdir(dir string) error {
	log.Printf("%s: MKDIR %s", t.target.Name, dir)
	c, err := t.sftpClient()
	if err != nil {
		return err
	}
	if err := c.Mkdir(dir); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func (t *NativeTransport) Rmdir(dir string) error {
	log.Printf("%s: RMDIR %s", t.target.Name, dir)
	c, err := t.sftpClient()
	if err != nil {
		return err
	}
	if err := c.RemoveDirectory(dir); err != nil {
		return &IOError{Op: "rmdir", Path: dir, Err: err}
	}
	return nil
}

func (t *NativeTransport) RemoveFile(filename string) error {
	log.Printf("%s: REMOVE %s", t.target.Name, filename)
	c, err := t.sftpClient()
	if err != nil {
		return err
	}
	if err := c.Remove(filename); err != nil {
		return &IOError{Op: "remove", Path: filename, Err: err}
	}
	return nil
}

func (t *NativeTransport) RenameFile(oldpath, newpath string) error {
	log.Printf("%s: RENAME %s to %s", t.target.Name, oldpath, newpath)
	c, err := t.sftpClient()
	if err != nil {
		return err
	}
	if err := c.Rename(oldpath, newpath); err != nil {
		return &IOError{Op: "rename", Path: oldpath, Err: err}
	}
	return nil
}

func (t *NativeTransport) GetFile(remotepath, localpath string) error {
	contents, err := t.GetFileContents(remotepath)
	if err != nil {
		return err
	}
	return os.WriteFile(localpath, contents, 0644)
}

func (t *NativeTransport) PutFile(localpath, remotepath string) error {
	contents, err := os.ReadFile(localpath)
	if err != nil {
		return err
	}
	return t.PutFileContents(remotepath, contents)
}

func (t *NativeTransport) Close() error {
	if t.files != nil {
		t.files.Close()
		t.files = nil
	}
	return t.client.Close()
}

// sshShell adapts an ssh.Session to the shell interface.
type sshShell struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (s *sshShell) Stdin() io.WriteCloser { return s.stdin }
func (s *sshShell) Stdout() io.Reader     { return s.stdout }
func (s *sshShell) Stderr() io.Reader     { return s.stderr }

func (s *sshShell) ExitStatus() (int, error) {
	err := s.sess.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return 0, err
}

func (s *sshShell) Close() error {
	s.sess.Close()
	return nil
}
