// Package topology maps a declarative configuration of logical test
// domains and roles onto concrete remote machines, and selects hosts
// from that pool to satisfy a test's declared resource needs.
package topology

import (
	"fmt"
	"time"

	"multihost/internal/remote"
)

// Defaults applied when the configuration leaves a setting out.
const (
	DefaultTestDir        = "/root/multihost_tests"
	DefaultWindowsTestDir = "/home/Administrator"
	DefaultSSHUsername    = "root"
	DefaultSSHKeyFilename = "~/.ssh/id_rsa"
	DefaultDomainType     = "default"
)

// CommandObserver is notified after each foreground remote command
// completes. Used to feed the run journal.
type CommandObserver func(h *Host, cmd *remote.Command, took time.Duration)

// Config holds the global settings and the ordered pool of Domains.
type Config struct {
	TestDir        string
	WindowsTestDir string
	SSHKeyFilename string
	SSHPassword    string
	SSHUsername    string
	IPv6           bool

	Domains []*Domain

	// Observer, when set, is called after every foreground command.
	Observer CommandObserver
}

// FromDict builds a Config from an already-parsed nested key-value
// structure, usually loaded from a YAML or JSON file. Legacy key
// aliases are collapsed to their canonical names before validation,
// and any unrecognized leftover key is a hard configuration error.
func FromDict(m map[string]any) (*Config, error) {
	d := newDict("config", m)
	d.rename("root_ssh_key_filename", "ssh_key_filename")
	d.rename("root_password", "ssh_password")

	cfg := &Config{}
	var err error
	if cfg.TestDir, err = d.popString("test_dir", DefaultTestDir); err != nil {
		return nil, err
	}
	if cfg.WindowsTestDir, err = d.popString("windows_test_dir", DefaultWindowsTestDir); err != nil {
		return nil, err
	}
	if cfg.SSHKeyFilename, err = d.popString("ssh_key_filename", ""); err != nil {
		return nil, err
	}
	if cfg.SSHPassword, err = d.popString("ssh_password", ""); err != nil {
		return nil, err
	}
	if cfg.SSHUsername, err = d.popString("ssh_username", DefaultSSHUsername); err != nil {
		return nil, err
	}
	if cfg.IPv6, err = d.popBool("ipv6"); err != nil {
		return nil, err
	}

	if cfg.SSHPassword == "" && cfg.SSHKeyFilename == "" {
		cfg.SSHKeyFilename = DefaultSSHKeyFilename
	}

	domains, ok, err := d.popList("domains")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, configErrorf("config: missing required key \"domains\"")
	}
	for _, entry := range domains {
		dom, err := domainFromDict(cfg, entry)
		if err != nil {
			return nil, err
		}
		cfg.Domains = append(cfg.Domains, dom)
	}

	if err := d.checkEmpty(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToDict exports the Config back to the nested-mapping shape consumed
// by FromDict. Feeding the result back into FromDict reproduces an
// equivalent Config; legacy aliases collapse to canonical keys.
func (c *Config) ToDict() map[string]any {
	domains := make([]any, 0, len(c.Domains))
	for _, d := range c.Domains {
		domains = append(domains, d.toDict())
	}
	return map[string]any{
		"test_dir":         c.TestDir,
		"windows_test_dir": c.WindowsTestDir,
		"ssh_key_filename": c.SSHKeyFilename,
		"ssh_password":     c.SSHPassword,
		"ssh_username":     c.SSHUsername,
		"ipv6":             c.IPv6,
		"domains":          domains,
	}
}

// HostByName returns the first host across all domains whose hostname,
// external hostname, or shortname equals name.
func (c *Config) HostByName(name string) (*Host, error) {
	for _, d := range c.Domains {
		if h, err := d.HostByName(name); err == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("host %q: %w", name, ErrNotFound)
}
