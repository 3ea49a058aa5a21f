package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 200, 0.1, 0.9, 64,
		zap.NewNop(), utils.NewTextProcessor(zap.NewNop()))
}

func TestClient_Classify(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini-2024-07-18",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: `{"score": 0.91, "confidence": 0.85, "explanation": "official brand domain"}`,
				},
			}},
		})
	})

	res, err := c.Classify(context.Background(), "Win a bike\n"+strings.Repeat("x", 500))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Score != 0.91 || res.Confidence != 0.85 || res.ModelVersion != "gpt-4o-mini-2024-07-18" {
		t.Errorf("result = %+v", res)
	}
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if strings.Count(got.Messages[1].Content, "x") > 64 {
		t.Error("email text was not truncated")
	}
}

func TestClient_ClassifyServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	if _, err := c.Classify(context.Background(), "Win a bike"); err == nil {
		t.Fatal("expected an error")
	}
}
