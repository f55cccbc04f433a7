package topology

import (
	"fmt"
	"path"
	"strings"
	"time"

	"multihost/internal/remote"
)

// HostKind selects host-type specific behavior. The set is closed;
// the configuration's host_type string is resolved to a kind once at
// load time.
type HostKind int

const (
	HostKindDefault HostKind = iota
	HostKindWindows
)

var hostKinds = map[string]HostKind{
	"default": HostKindDefault,
	"windows": HostKindWindows,
}

func (k HostKind) String() string {
	if k == HostKindWindows {
		return "windows"
	}
	return "default"
}

// LogCollector is a callback registered on a Host to gather a remote
// log file after a test.
type LogCollector func(h *Host, filename string)

// Host is one addressable remote machine with a role within its
// domain.
type Host struct {
	Domain *Domain
	Kind   HostKind
	Role   string

	Hostname         string
	Shortname        string
	ExternalHostname string
	IP               string
	NetBIOS          string

	Username    string
	KeyFilename string
	Password    string
	HostKey     string
	Port        int

	TestDir string

	transport  remote.Transport
	collectors []LogCollector
}

func (h *Host) String() string {
	return fmt.Sprintf("<Host %s (%s)>", h.Hostname, h.Role)
}

// EnvFilePath is the remote path of the env.sh file sourced before
// commands when the environment is enabled.
func (h *Host) EnvFilePath() string {
	return path.Join(h.TestDir, "env.sh")
}

// prelude is written at the start of every shell invocation.
func (h *Host) prelude() []byte {
	if h.Kind == HostKindWindows {
		return nil
	}
	return []byte("set -e\n")
}

// AddLogCollector registers a log collector for this host.
func (h *Host) AddLogCollector(c LogCollector) {
	h.collectors = append(h.collectors, c)
}

// RemoveLogCollectors unregisters all log collectors.
func (h *Host) RemoveLogCollectors() {
	h.collectors = nil
}

// CollectLog calls every registered log collector on the given remote
// filename.
func (h *Host) CollectLog(filename string) {
	for _, c := range h.collectors {
		c(h, filename)
	}
}

// Transport returns the connection to this host, opening it on first
// use. The strategy is a process-wide choice resolved from the
// environment.
func (h *Host) Transport() (remote.Transport, error) {
	if h.transport == nil {
		t, err := remote.New(remote.KindFromEnv(), h.target())
		if err != nil {
			return nil, err
		}
		h.transport = t
	}
	return h.transport, nil
}

// ResetConnection tears down the cached connection. The next use will
// reconnect, picking up any credential or hostname changes made on the
// Host since.
func (h *Host) ResetConnection() {
	if h.transport != nil {
		h.transport.Close()
		h.transport = nil
	}
}

func (h *Host) target() remote.Target {
	return remote.Target{
		Name:        h.Shortname,
		Addr:        h.ExternalHostname,
		Port:        h.Port,
		Username:    h.Username,
		KeyFilename: h.KeyFilename,
		Password:    h.Password,
		HostKey:     h.HostKey,
	}
}

// GetFileContents reads the named remote file and returns raw bytes.
func (h *Host) GetFileContents(filename string) ([]byte, error) {
	t, err := h.Transport()
	if err != nil {
		return nil, err
	}
	return t.GetFileContents(filename)
}

// PutFileContents writes the given bytes to the named remote file.
func (h *Host) PutFileContents(filename string, contents []byte) error {
	t, err := h.Transport()
	if err != nil {
		return err
	}
	return t.PutFileContents(filename, contents)
}

// runSettings collects the per-invocation options of RunCommand.
type runSettings struct {
	cwd        string
	setEnv     bool
	stdinText  string
	input      []byte
	logStdout  bool
	raiseOnErr bool
	background bool
}

// RunOption adjusts a single RunCommand or RunScript invocation.
type RunOption func(*runSettings)

// WithCWD overrides the working directory (default: the host's test
// directory).
func WithCWD(dir string) RunOption {
	return func(s *runSettings) { s.cwd = dir }
}

// WithStdinText pipes the given text into the command via a safely
// escaped echo, so binary-unsafe characters survive the shell hop.
func WithStdinText(text string) RunOption {
	return func(s *runSettings) { s.stdinText = text }
}

// WithInput writes raw bytes to the shell before the inline stdin and
// the command invocation.
func WithInput(raw []byte) RunOption {
	return func(s *runSettings) { s.input = raw }
}

// WithoutEnv skips sourcing env.sh before the command.
func WithoutEnv() RunOption {
	return func(s *runSettings) { s.setEnv = false }
}

// WithoutStdoutLog suppresses stdout logging; useful for binary
// output. The output stays available on the Command.
func WithoutStdoutLog() RunOption {
	return func(s *runSettings) { s.logStdout = false }
}

// NoRaiseOnError makes a nonzero exit status return normally instead
// of failing.
func NoRaiseOnError() RunOption {
	return func(s *runSettings) { s.raiseOnErr = false }
}

// InBackground returns immediately with a running Command. The caller
// must eventually Wait (or defer Close) on it.
func InBackground() RunOption {
	return func(s *runSettings) { s.background = true }
}

// RunCommand runs an argument vector on this host with no shell
// expansion; each argument is quoted. In foreground mode (the
// default) it blocks until the command completes and fails on nonzero
// exit unless NoRaiseOnError is given.
func (h *Host) RunCommand(argv []string, opts ...RunOption) (*remote.Command, error) {
	var invocation []byte
	for _, arg := range argv {
		invocation = append(invocation, remote.ShellQuote([]byte(arg))...)
		invocation = append(invocation, ' ')
	}
	return h.runShell(strings.Join(argv, " "), invocation, opts)
}

// RunScript runs a shell-script string on this host, with shell
// expansion. See RunCommand for the execution contract.
func (h *Host) RunScript(script string, opts ...RunOption) (*remote.Command, error) {
	invocation := make([]byte, 0, len(script)+2)
	invocation = append(invocation, '(')
	invocation = append(invocation, script...)
	invocation = append(invocation, ')')
	return h.runShell(script, invocation, opts)
}

func (h *Host) runShell(logArgv string, invocation []byte, opts []RunOption) (*remote.Command, error) {
	s := runSettings{
		cwd:        h.TestDir,
		setEnv:     true,
		logStdout:  true,
		raiseOnErr: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	t, err := h.Transport()
	if err != nil {
		return nil, err
	}
	cmd, err := t.StartShell(logArgv, s.logStdout)
	if err != nil {
		return nil, err
	}

	if _, err := cmd.Stdin.Write(h.shellPayload(invocation, &s)); err != nil {
		cmd.RaiseOnErr = false
		cmd.Close()
		return nil, fmt.Errorf("write to shell on %s: %w", h.Hostname, err)
	}
	cmd.RaiseOnErr = s.raiseOnErr

	if s.background {
		return cmd, nil
	}

	started := time.Now()
	_, waitErr := cmd.Wait()
	if obs := h.Domain.Config.Observer; obs != nil {
		obs(h, cmd, time.Since(started))
	}
	if waitErr != nil {
		return cmd, waitErr
	}
	return cmd, nil
}

// shellPayload serializes one complete shell invocation: working
// directory setup, environment sourcing, prelude, raw input, inline
// stdin via echo, the command itself, and the exit marker.
func (h *Host) shellPayload(invocation []byte, s *runSettings) []byte {
	var b []byte
	b = append(b, "cd "...)
	b = append(b, remote.ShellQuote([]byte(s.cwd))...)
	b = append(b, '\n')
	if s.setEnv {
		b = append(b, ". "...)
		b = append(b, remote.ShellQuote([]byte(h.EnvFilePath()))...)
		b = append(b, '\n')
	}
	b = append(b, h.prelude()...)
	b = append(b, s.input...)
	if s.stdinText != "" {
		b = append(b, "echo -e "...)
		b = append(b, remote.EchoQuote([]byte(s.stdinText))...)
		b = append(b, " | "...)
	}
	b = append(b, invocation...)
	b = append(b, "\nexit\n"...)
	return b
}

func hostFromDict(dom *Domain, entry any) (*Host, error) {
	var m map[string]any
	switch v := entry.(type) {
	case string:
		m = map[string]any{"name": v}
	default:
		var ok bool
		m, ok = asStringMap(entry)
		if !ok {
			return nil, configErrorf("host entry in domain %s must be a name or a mapping, got %T",
				dom.Name, entry)
		}
	}
	d := newDict("host", m)

	name, err := d.popString("name", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, configErrorf("host in domain %s: missing required key \"name\"", dom.Name)
	}
	d.name = "host " + name

	role, err := d.popString("role", dom.StaticRoles()[0])
	if err != nil {
		return nil, err
	}
	ip, err := d.popString("ip", "")
	if err != nil {
		return nil, err
	}
	externalHostname, err := d.popString("external_hostname", "")
	if err != nil {
		return nil, err
	}
	username, err := d.popString("username", "")
	if err != nil {
		return nil, err
	}
	password, err := d.popString("password", "")
	if err != nil {
		return nil, err
	}
	hostType, err := d.popString("host_type", "default")
	if err != nil {
		return nil, err
	}
	sshPort, err := d.popInt("ssh_port", 22)
	if err != nil {
		return nil, err
	}
	if err := d.checkEmpty(); err != nil {
		return nil, err
	}

	kind, ok := hostKinds[hostType]
	if !ok {
		return nil, configErrorf("host %s: unknown host_type %q", name, hostType)
	}

	cfg := dom.Config
	h := &Host{
		Domain: dom,
		Kind:   kind,
		Role:   strings.ToLower(role),
		Port:   sshPort,
	}

	// Hostname derivation: a bare name gets the domain appended; a
	// dotted name is used verbatim, minus a single trailing dot.
	switch {
	case strings.HasSuffix(name, "."):
		h.Hostname = name[:len(name)-1]
	case !strings.Contains(name, "."):
		h.Hostname = name + "." + dom.Name
	default:
		h.Hostname = name
	}
	h.Shortname, _, _ = strings.Cut(h.Hostname, ".")

	if externalHostname != "" {
		h.ExternalHostname = externalHostname
	} else {
		h.ExternalHostname = h.Hostname
	}

	h.NetBIOS = strings.ToUpper(strings.SplitN(dom.Name, ".", 2)[0])

	if username != "" {
		h.Username = username
	} else {
		h.Username = cfg.SSHUsername
	}
	// An explicitly configured password makes this a password-only
	// host; otherwise the Config-level credentials apply.
	if password != "" {
		h.Password = password
	} else {
		h.KeyFilename = cfg.SSHKeyFilename
		h.Password = cfg.SSHPassword
	}

	if kind == HostKindWindows {
		h.TestDir = cfg.WindowsTestDir
	} else {
		h.TestDir = cfg.TestDir
	}

	if ip != "" {
		h.IP = ip
	} else {
		resolved, err := lookupHostIP(h.ExternalHostname, cfg.IPv6)
		if err != nil {
			return nil, configErrorf("could not determine IP address of %s: %v",
				h.ExternalHostname, err)
		}
		h.IP = resolved
	}

	return h, nil
}

func (h *Host) toDict() map[string]any {
	m := map[string]any{
		"name":              h.Hostname,
		"ip":                h.IP,
		"role":              h.Role,
		"external_hostname": h.ExternalHostname,
	}
	if h.Kind != HostKindDefault {
		m["host_type"] = h.Kind.String()
	}
	if h.Port != 22 {
		m["ssh_port"] = h.Port
	}
	return m
}
