package httpscore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/utils"
)

func newClient(url string) *Client {
	return NewClient(nil, url, 1024, zap.NewNop(), utils.NewTextProcessor(zap.NewNop()))
}

func TestClassify(t *testing.T) {
	var got scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"score": 0.93, "confidence": 0.88, "model_version": "giveaway-bert-3"}`))
	}))
	defer srv.Close()

	res, err := newClient(srv.URL).Classify(context.Background(), "Win a bike")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Text != "Win a bike" {
		t.Errorf("sent text %q", got.Text)
	}
	if res.Score != 0.93 || res.Confidence != 0.88 || res.ModelVersion != "giveaway-bert-3" {
		t.Errorf("result = %+v", res)
	}
}

func TestClassify_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
		{"missing confidence", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"score": 0.5}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			if _, err := newClient(srv.URL).Classify(context.Background(), "x"); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestClassify_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := newClient(srv.URL).Classify(ctx, "x"); err == nil {
		t.Fatal("expected a deadline error")
	}
}
