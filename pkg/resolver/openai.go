package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const classifierSystemPrompt = `You are a fact-checking classifier for a wagering market.
Given a claim, decide whether it is TRUE or FALSE and how confident you are.
Respond with JSON only, no prose: {"verdict": true|false, "confidence": 0-100, "reason": "<one sentence>"}.
Use confidence below 85 whenever the claim cannot be verified from well-established facts.`

// OpenAIClassifier judges claims with an OpenAI chat model.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClassifier creates a classifier using the given API key and model.
// An empty model defaults to gpt-4o-mini.
func NewOpenAIClassifier(apiKey, model string, rps float64) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(openai.DefaultConfig(apiKey)),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Classify asks the model for a verdict on the claim text.
func (c *OpenAIClassifier) Classify(ctx context.Context, claimText string) (*Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifierSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: claimText,
			},
		},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict extracts the JSON verdict from a model reply, tolerating
// markdown fences around it.
func parseVerdict(content string) (*Verdict, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, fmt.Errorf("parse model verdict %q: %w", content, err)
	}
	if verdict.Confidence > 100 {
		verdict.Confidence = 100
	}
	return &verdict, nil
}
