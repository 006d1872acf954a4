package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WebhookClassifier calls an external classification webhook. The endpoint
// receives {"claim": <text>} and answers with a Verdict payload
// ({"verdict": bool, "confidence": 0-100, "evidence_cid": ..., "reason": ...}).
type WebhookClassifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookClassifier creates a classifier backed by the webhook at url,
// limited to rps requests per second.
func NewWebhookClassifier(url string, rps float64) *WebhookClassifier {
	return &WebhookClassifier{
		url: url,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Classify posts the claim text to the webhook and parses the verdict.
func (c *WebhookClassifier) Classify(ctx context.Context, claimText string) (*Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"claim": claimText})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classifier webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier webhook returned %d: %s", resp.StatusCode, data)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if verdict.Confidence > 100 {
		return nil, fmt.Errorf("webhook confidence %d out of range", verdict.Confidence)
	}
	return &verdict, nil
}
