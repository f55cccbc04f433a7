package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListRuns(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	entries := []RunEntry{
		{Host: "master.adomain.test", Argv: "echo one", ReturnCode: 0,
			StartedAt: base, Duration: 120 * time.Millisecond, StdoutBytes: 4},
		{Host: "srv.bdomain.test", Argv: "false", ReturnCode: 1,
			StartedAt: base.Add(time.Second), Duration: 30 * time.Millisecond, StderrBytes: 12},
		{Host: "master.adomain.test", Argv: "echo two", ReturnCode: 0,
			StartedAt: base.Add(2 * time.Second), Duration: 80 * time.Millisecond},
	}
	for _, e := range entries {
		if err := j.RecordRun(ctx, e); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	got, err := j.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d runs, want 3", len(got))
	}
	// Newest first.
	if got[0].Argv != "echo two" || got[2].Argv != "echo one" {
		t.Errorf("order = %s, %s, %s", got[0].Argv, got[1].Argv, got[2].Argv)
	}
	if got[0].ID == "" {
		t.Error("missing generated ID")
	}
	if !got[2].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got[2].StartedAt, base)
	}
	if got[2].Duration != 120*time.Millisecond {
		t.Errorf("Duration = %v", got[2].Duration)
	}
	if got[2].StdoutBytes != 4 {
		t.Errorf("StdoutBytes = %d", got[2].StdoutBytes)
	}
}

func TestListRunsHostFilterAndLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		host := "master.adomain.test"
		if i%2 == 1 {
			host = "srv.bdomain.test"
		}
		err := j.RecordRun(ctx, RunEntry{
			Host: host, Argv: "true", StartedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	got, err := j.ListRuns(ctx, "master.adomain.test", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("filtered runs = %d, want 3", len(got))
	}
	for _, e := range got {
		if e.Host != "master.adomain.test" {
			t.Errorf("filter leaked host %s", e.Host)
		}
	}

	got, err = j.ListRuns(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limited runs = %d, want 2", len(got))
	}
}

func TestRecordLog(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	if err := j.RecordLog(ctx, "master.adomain.test", "/var/log/messages"); err != nil {
		t.Fatalf("RecordLog: %v", err)
	}

	var host, path string
	err := j.db.QueryRowContext(ctx,
		`SELECT host, path FROM collected_logs`).Scan(&host, &path)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if host != "master.adomain.test" || path != "/var/log/messages" {
		t.Errorf("recorded %s/%s", host, path)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.RecordRun(context.Background(), RunEntry{Host: "h", Argv: "true"}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	got, err := j.ListRuns(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("runs after reopen = %d, want 1", len(got))
	}
}
