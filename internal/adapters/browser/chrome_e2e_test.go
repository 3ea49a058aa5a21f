//go:build e2e

package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

const entryPage = `<!doctype html>
<html><body>
<h1>Win a bike</h1>
<form id="entry" action="/thanks" method="post">
  <input name="first_name" required>
  <input name="email" type="email" required>
  <input name="newsletter" type="checkbox">
  <button type="submit">Enter</button>
</form>
</body></html>`

func TestChrome_FillsAndSubmits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/win", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(entryPage))
	})
	mux.HandleFunc("/thanks", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("email") != "ana@example.com" {
			http.Error(w, "bad entry", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`<html><body><p>Thank you, you're entered!</p></body></html>`))
	})
	mux.HandleFunc("/closed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>This giveaway has ended.</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	chrome, err := NewChrome(config.BrowserConfig{Headless: true}, zap.NewNop())
	if err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	defer chrome.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("entry", func(t *testing.T) {
		p, err := chrome.NewPage(ctx)
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		defer p.Close()

		if err := p.Open(ctx, srv.URL+"/win"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		shape, err := p.LocateForm(ctx, core.FormHint{})
		if err != nil {
			t.Fatalf("LocateForm: %v", err)
		}
		if len(shape.Fields) != 3 {
			t.Fatalf("fields = %+v", shape.Fields)
		}
		for name, value := range map[string]string{"first_name": "Ana", "email": "ana@example.com"} {
			if err := p.SetField(ctx, name, value); err != nil {
				t.Fatalf("SetField(%s): %v", name, err)
			}
		}
		if captcha, err := p.DetectCaptcha(ctx); err != nil || captcha {
			t.Fatalf("DetectCaptcha = %v, %v", captcha, err)
		}
		if err := p.Submit(ctx, core.FormHint{}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := p.DetectConfirmation(ctx, []string{"you're entered"}); err != nil {
			t.Fatalf("DetectConfirmation: %v", err)
		}
	})

	t.Run("ended", func(t *testing.T) {
		p, err := chrome.NewPage(ctx)
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		defer p.Close()

		if kind := core.KindOf(p.Open(ctx, srv.URL+"/closed")); kind != core.KindTargetInvalid {
			t.Errorf("kind = %q, want target_invalid", kind)
		}
	})
}
