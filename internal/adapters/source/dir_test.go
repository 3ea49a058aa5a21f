package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestDir_PollAndAck(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("01.eml", plainMessage)
	write("02.eml", "not a message")
	write("03.eml", multipartMessage)
	write("notes.txt", "ignored")

	src, err := NewDir(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	ctx := context.Background()
	var ids []string
	var errs int
	for c, err := range src.Poll(ctx) {
		if err != nil {
			errs++
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) != 2 || errs != 1 {
		t.Fatalf("ids = %v, errs = %d", ids, errs)
	}

	if err := src.Ack(ctx, ids[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, processedDir, "01.eml")); err != nil {
		t.Errorf("acked file not moved: %v", err)
	}

	var again []string
	for c, err := range src.Poll(ctx) {
		if err == nil {
			again = append(again, c.ID)
		}
	}
	if len(again) != 1 || again[0] != ids[1] {
		t.Errorf("second poll = %v, want [%s]", again, ids[1])
	}

	if err := src.Ack(ctx, "never-seen"); err == nil {
		t.Error("expected an error for an unknown id")
	}
}

func TestDir_StopsWhenConsumerStops(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.eml", "b.eml", "c.eml"} {
		os.WriteFile(filepath.Join(dir, name), []byte(plainMessage), 0o644)
	}
	src, err := NewDir(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	n := 0
	for range src.Poll(context.Background()) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("yielded %d", n)
	}
}
