// Package llmclient adapts the Anthropic Messages API into a classifier
// ensemble member.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

const systemPrompt = `You are a classification model. You receive a message and a task.
Respond with ONLY a JSON object, no prose, no markdown fences.

For label scoring tasks, respond with {"scores": {"<label>": <0..1>, ...}} where
scores cover every candidate label and sum to roughly 1.

For hypothesis tasks, respond with {"score": <0..1>} giving the probability
that the hypothesis is true of the message.`

// Client scores messages by prompting an Anthropic model for JSON output.
// It implements engine.Classifier.
type Client struct {
	modelID string
	model   anthropic.Model
	client  anthropic.Client
}

// New creates an LLM-backed classifier. modelID is the ensemble identity,
// model the Anthropic model name, apiKey the account credential.
func New(modelID, model, apiKey string) *Client {
	return &Client{
		modelID: modelID,
		model:   anthropic.Model(model),
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// ModelID returns the ensemble identity of this classifier.
func (c *Client) ModelID() string { return c.modelID }

type scoresPayload struct {
	Scores map[string]float64 `json:"scores"`
}

type scorePayload struct {
	Score float64 `json:"score"`
}

// Classify asks the model to distribute probability mass over the
// candidate labels.
func (c *Client) Classify(ctx context.Context, text string, candidateLabels []string) (map[string]float64, error) {
	prompt := fmt.Sprintf("Candidate labels: %s\n\nMessage:\n%s\n\nScore every label.",
		strings.Join(candidateLabels, ", "), text)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload scoresPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: parse scores from %s: %v", domain.ErrClassifierInvalidResponse, c.modelID, err)
	}
	if len(payload.Scores) == 0 {
		return nil, fmt.Errorf("%w: empty score map from %s", domain.ErrClassifierInvalidResponse, c.modelID)
	}
	return payload.Scores, nil
}

// ClassifyHypothesis asks the model for a single entailment probability.
func (c *Client) ClassifyHypothesis(ctx context.Context, text, hypothesis string) (float64, error) {
	prompt := fmt.Sprintf("Hypothesis: %s\n\nMessage:\n%s\n\nScore the hypothesis.", hypothesis, text)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0, fmt.Errorf("%w: parse score from %s: %v", domain.ErrClassifierInvalidResponse, c.modelID, err)
	}
	return payload.Score, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrClassifierTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := extractJSON(sb.String())
	if out == "" {
		return "", fmt.Errorf("%w: no JSON in response from %s", domain.ErrClassifierInvalidResponse, c.modelID)
	}
	return out, nil
}

// extractJSON trims anything surrounding the outermost JSON object, since
// models occasionally wrap output in fences despite instructions.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
