package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/store"
	"github.com/mikey/giveaway-engine/internal/core"
)

const giveawayEmail = "From: Brand <promo@brand.example>\r\n" +
	"Subject: Win a bike\r\n" +
	"\r\n" +
	"Enter at https://brand.example/win before Friday.\r\n"

func TestPrintStatus(t *testing.T) {
	st := store.NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	fp := core.Fingerprint("3f9a0c7e5b1d2a4c9e8f7a6b5c4d3e2f")
	if _, err := st.CreatePending(ctx, fp, core.CreateParams{
		CandidateID:   "m1",
		TargetURL:     "https://brand.example/win",
		NextAttemptAt: time.Now().Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := printStatus(cmd, st, fp); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	for _, want := range []string{"Status:       pending", "https://brand.example/win", "Next attempt:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := printStatus(cmd, st, "unknown"); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	if !strings.Contains(out.String(), "No participation record") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheck_HTTPScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 0.95, "confidence": 0.9, "model_version": "stub-1"}`))
	}))
	defer srv.Close()
	t.Setenv("GIVEAWAY_HTTPSCORE_URL", srv.URL)

	path := filepath.Join(t.TempDir(), "giveaway.eml")
	if err := os.WriteFile(path, []byte(giveawayEmail), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--provider", "http", "--file", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("check: %v", err)
	}

	for _, want := range []string{
		"Entry link:  https://brand.example/win",
		"Model:       stub-1",
		"Decision:    participate",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
