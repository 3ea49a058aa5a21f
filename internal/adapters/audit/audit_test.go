package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []core.AuditEntry
	gate    chan struct{}
}

func (r *recordingSink) Write(_ context.Context, e core.AuditEntry) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func entry(id string) core.AuditEntry {
	return core.AuditEntry{
		ID:          id,
		CandidateID: "c-" + id,
		Fingerprint: "3f9a0c7e5b1d2a4c",
		Decision:    core.DecisionParticipate,
		Status:      core.StatusSucceeded,
		Attempts:    1,
		At:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Classification: &core.ClassificationResult{
			Score: 0.9, Confidence: 0.8, ModelVersion: "gpt-4o-mini",
		},
	}
}

func TestAsync_DrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	a := NewAsync(sink, 16, zap.NewNop())

	for _, id := range []string{"1", "2", "3"} {
		if err := a.Write(context.Background(), entry(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if len(sink.entries) != 3 || sink.entries[2].ID != "3" {
		t.Errorf("entries = %+v", sink.entries)
	}
	// Writes after close are ignored
	if err := a.Write(context.Background(), entry("4")); err != nil {
		t.Errorf("write after close: %v", err)
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	a := NewAsync(sink, 1, zap.NewNop())

	start := time.Now()
	for i := 0; i < 10; i++ {
		a.Write(context.Background(), entry("x"))
	}
	if time.Since(start) > time.Second {
		t.Error("Write blocked on a full buffer")
	}
	if a.Dropped() < 8 {
		t.Errorf("Dropped = %d, want at least 8", a.Dropped())
	}

	close(sink.gate)
	a.Close()
}

func TestFile_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	f.Write(context.Background(), entry("1"))
	e := entry("2")
	e.Decision, e.Status, e.ErrorKind, e.Classification = core.DecisionBelowThreshold, "", core.KindNone, nil
	f.Write(context.Background(), e)
	f.Close()

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0]["decision"] != "participate" || lines[0]["model_version"] != "gpt-4o-mini" {
		t.Errorf("first line = %v", lines[0])
	}
	if _, ok := lines[1]["score"]; ok {
		t.Errorf("unclassified entry has a score: %v", lines[1])
	}
}
