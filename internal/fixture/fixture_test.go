package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"multihost/internal/remote"
	"multihost/internal/runlog"
	"multihost/internal/topology"
)

func testTopology(t *testing.T) *topology.Config {
	t.Helper()
	cfg, err := topology.FromDict(map[string]any{
		"domains": []any{
			map[string]any{
				"name": "adomain.test",
				"hosts": []any{
					map[string]any{"name": "master", "ip": "192.0.2.1"},
					map[string]any{"name": "replica1", "ip": "192.0.2.2", "role": "replica"},
					map[string]any{"name": "client1", "ip": "192.0.2.3", "role": "client"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("FromDict: %v", err)
	}
	return cfg
}

func TestNewSatisfied(t *testing.T) {
	f, err := New(testTopology(t), []topology.Descriptor{
		{Hosts: map[string]int{"master": 1, "replica": 1}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d, err := f.Domain("")
	if err != nil {
		t.Fatalf("Domain: %v", err)
	}
	if d.Name != "adomain.test" {
		t.Errorf("domain = %s", d.Name)
	}
	if len(d.Hosts) != 2 {
		t.Errorf("hosts = %d, want 2 after pruning", len(d.Hosts))
	}

	h, err := f.Host("", "replica")
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	if h.Hostname != "replica1.adomain.test" {
		t.Errorf("host = %s", h.Hostname)
	}
}

func TestNewInsufficientResources(t *testing.T) {
	_, err := New(testTopology(t), []topology.Descriptor{
		{Hosts: map[string]int{"replica": 5}},
	})
	var se *SkipError
	if !errors.As(err, &se) {
		t.Fatalf("expected SkipError, got %v", err)
	}
	var re *topology.ResourceError
	if !errors.As(err, &re) {
		t.Errorf("SkipError should wrap the ResourceError, got %v", err)
	}
}

func TestNewConfigMistakeIsNotSkip(t *testing.T) {
	// Duplicate descriptor types are caller bugs, not missing
	// resources; they must not look like a skip.
	_, err := New(testTopology(t), []topology.Descriptor{
		{Hosts: map[string]int{"master": 1}},
		{Hosts: map[string]int{"replica": 1}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *SkipError
	if errors.As(err, &se) {
		t.Errorf("ConfigError surfaced as SkipError: %v", err)
	}
	var ce *topology.ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestDomainNotFound(t *testing.T) {
	f, err := New(testTopology(t), []topology.Descriptor{
		{Hosts: map[string]int{"master": 1}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Domain("B"); !errors.Is(err, topology.ErrNotFound) {
		t.Errorf("Domain(B) = %v, want ErrNotFound", err)
	}
	if _, err := f.Host("", "nosuch"); !errors.Is(err, topology.ErrNotFound) {
		t.Errorf("Host(nosuch) = %v, want ErrNotFound", err)
	}
}

// Journal wiring must work on an unfiltered config, including one with
// several domains of the same type, which Filter would reject.
func TestAttachJournalUnfiltered(t *testing.T) {
	cfg, err := topology.FromDict(map[string]any{
		"domains": []any{
			map[string]any{
				"name":  "adomain.test",
				"hosts": []any{map[string]any{"name": "master", "ip": "192.0.2.1"}},
			},
			map[string]any{
				"name":  "adomain2.test",
				"hosts": []any{map[string]any{"name": "master", "ip": "192.0.2.2"}},
			},
		},
	})
	if err != nil {
		t.Fatalf("FromDict: %v", err)
	}

	j, err := runlog.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	AttachJournal(cfg, j)
	if cfg.Observer == nil {
		t.Fatal("observer not wired")
	}

	h := cfg.Domains[1].Hosts[0]
	cfg.Observer(h, &remote.Command{Argv: "true"}, 5*time.Millisecond)
	h.CollectLog("/var/log/messages")

	runs, err := j.ListRuns(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Host != "master.adomain2.test" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mh.yaml")
	config := `
domains:
  - name: adomain.test
    hosts:
      - name: master
        ip: 192.0.2.1
`
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	f, err := FromFile(path, []topology.Descriptor{
		{Hosts: map[string]int{"master": 1}},
	})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if _, err := f.Host("", "master"); err != nil {
		t.Errorf("Host: %v", err)
	}
}
