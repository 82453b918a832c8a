// Package mlclient talks to the zero-shot classification sidecar over HTTP.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Client is an HTTP classifier backed by a single sidecar model. It
// implements engine.Classifier.
type Client struct {
	modelID    string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. Zero or negative
// disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// New creates a sidecar client. modelID is the ensemble identity reported
// in votes and failures; baseURL is the sidecar root, without trailing slash.
func New(modelID, baseURL string, opts ...Option) *Client {
	c := &Client{
		modelID:    modelID,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelID returns the ensemble identity of this classifier.
func (c *Client) ModelID() string { return c.modelID }

type classifyRequest struct {
	Text            string   `json:"text"`
	CandidateLabels []string `json:"candidate_labels"`
}

type classifyResponse struct {
	Scores map[string]float64 `json:"scores"`
}

type hypothesisRequest struct {
	Text       string `json:"text"`
	Hypothesis string `json:"hypothesis"`
}

type hypothesisResponse struct {
	Score float64 `json:"score"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version"`
}

// Classify sends POST /classify and returns per-label scores.
func (c *Client) Classify(ctx context.Context, text string, candidateLabels []string) (map[string]float64, error) {
	var resp classifyResponse
	err := c.post(ctx, "/classify", classifyRequest{Text: text, CandidateLabels: candidateLabels}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Scores) == 0 {
		return nil, fmt.Errorf("%w: empty score map from %s", domain.ErrClassifierInvalidResponse, c.modelID)
	}
	return resp.Scores, nil
}

// ClassifyHypothesis sends POST /classify_hypothesis and returns the
// entailment score for a single hypothesis.
func (c *Client) ClassifyHypothesis(ctx context.Context, text, hypothesis string) (float64, error) {
	var resp hypothesisResponse
	err := c.post(ctx, "/classify_hypothesis", hypothesisRequest{Text: text, Hypothesis: hypothesis}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Score, nil
}

// Health calls GET /health and returns the reported model version.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: health status %d", domain.ErrClassifierUnavailable, resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", fmt.Errorf("%w: decode health: %v", domain.ErrClassifierInvalidResponse, err)
	}
	return health.ModelVersion, nil
}

func (c *Client) post(ctx context.Context, path string, payload, respPtr any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return mapTransportError(err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s returned %d", domain.ErrClassifierUnavailable, c.modelID, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s returned %d", domain.ErrClassifierInvalidResponse, c.modelID, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(respPtr); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrClassifierInvalidResponse, err)
	}
	return nil
}

// mapTransportError folds transport failures into the engine's failure
// taxonomy: deadlines become timeouts, everything else is unavailable.
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrClassifierTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
}
