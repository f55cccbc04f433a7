// Package fixture is the test-runner integration surface: it loads a
// topology, filters it against a test's declared resource needs, and
// signals "skip this test" when the configured pool cannot satisfy
// them.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"multihost/internal/loader"
	"multihost/internal/remote"
	"multihost/internal/runlog"
	"multihost/internal/topology"
)

// SkipError means the configured pool cannot satisfy the test's
// requirements. Callers should skip the test, not fail it.
type SkipError struct {
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	return "multihost test skipped: " + e.Reason
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// Fixture is a filtered topology ready for a multi-host test.
type Fixture struct {
	Config  *topology.Config
	Journal *runlog.Journal
}

// Option adjusts fixture construction.
type Option func(*Fixture)

// WithJournal records every foreground command run through the
// fixture's hosts, and every collected log, into the journal.
func WithJournal(j *runlog.Journal) Option {
	return func(f *Fixture) { f.Journal = j }
}

// New filters the config against the descriptions and wraps it in a
// Fixture. A filter failure caused by insufficient resources becomes a
// SkipError; configuration mistakes propagate as-is.
func New(cfg *topology.Config, descriptions []topology.Descriptor, opts ...Option) (*Fixture, error) {
	f := &Fixture{Config: cfg}
	for _, opt := range opts {
		opt(f)
	}

	if err := cfg.Filter(descriptions); err != nil {
		var re *topology.ResourceError
		if errors.As(err, &re) {
			return nil, &SkipError{
				Reason: fmt.Sprintf("not enough resources configured: %v", re),
				Err:    err,
			}
		}
		return nil, err
	}

	if f.Journal != nil {
		AttachJournal(cfg, f.Journal)
	}

	return f, nil
}

// AttachJournal wires the config's command observer and every host's
// log collectors to the journal. It works on any loaded config,
// filtered or not.
func AttachJournal(cfg *topology.Config, j *runlog.Journal) {
	cfg.Observer = func(h *topology.Host, cmd *remote.Command, took time.Duration) {
		err := j.RecordRun(context.Background(), runlog.RunEntry{
			Host:        h.Hostname,
			Argv:        cmd.Argv,
			ReturnCode:  cmd.ReturnCode(),
			StartedAt:   time.Now().Add(-took),
			Duration:    took,
			StdoutBytes: len(cmd.StdoutBytes()),
			StderrBytes: len(cmd.StderrBytes()),
		})
		if err != nil {
			log.Printf("journal: %v", err)
		}
	}
	for _, d := range cfg.Domains {
		for _, h := range d.Hosts {
			h.AddLogCollector(func(h *topology.Host, filename string) {
				if err := j.RecordLog(context.Background(), h.Hostname, filename); err != nil {
					log.Printf("journal: %v", err)
				}
			})
		}
	}
}

// FromFile loads a configuration file and builds a fixture from it.
func FromFile(path string, descriptions []topology.Descriptor, opts ...Option) (*Fixture, error) {
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, descriptions, opts...)
}

// Domain returns the filtered domain of the given type.
func (f *Fixture) Domain(domainType string) (*topology.Domain, error) {
	if domainType == "" {
		domainType = topology.DefaultDomainType
	}
	for _, d := range f.Config.Domains {
		if d.Type == domainType {
			return d, nil
		}
	}
	return nil, fmt.Errorf("domain type %q: %w", domainType, topology.ErrNotFound)
}

// Host returns the first host of the given role in the domain of the
// given type.
func (f *Fixture) Host(domainType, role string) (*topology.Host, error) {
	d, err := f.Domain(domainType)
	if err != nil {
		return nil, err
	}
	return d.HostByRole(role)
}
