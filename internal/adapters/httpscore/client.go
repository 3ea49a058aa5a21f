package httpscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/utils"
)

const maxResponseBytes = 1 << 20

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Score        *float64 `json:"score"`
	Confidence   *float64 `json:"confidence"`
	ModelVersion string   `json:"model_version"`
	Explanation  string   `json:"explanation"`
}

// Client posts email text to a scoring service that answers with
// {"score", "confidence", "model_version"}
type Client struct {
	httpClient    *http.Client
	url           string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClient creates a new HTTP scoring client. A nil httpClient uses
// http.DefaultClient; deadlines come from the caller's context.
func NewClient(httpClient *http.Client, url string, maxBodySize int, logger *zap.Logger, textProcessor *utils.TextProcessor) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:    httpClient,
		url:           url,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Classify implements core.Classifier
func (c *Client) Classify(ctx context.Context, text string) (*core.ClassificationResult, error) {
	payload, err := json.Marshal(scoreRequest{Text: c.textProcessor.ProcessText(text, c.maxBodySize)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read score response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Scoring service rejected request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("scoring service returned %s", resp.Status)
	}

	var out scoreResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}
	if out.Score == nil || out.Confidence == nil {
		return nil, fmt.Errorf("score response is missing score or confidence")
	}

	return &core.ClassificationResult{
		Score:        *out.Score,
		Confidence:   *out.Confidence,
		ModelVersion: out.ModelVersion,
		Explanation:  out.Explanation,
		AnalyzedAt:   time.Now(),
	}, nil
}
