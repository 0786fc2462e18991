// Package embed wraps the embedding-model upstream (§4.1 Embedding
// Client): deterministic text composition, an HTTP client shaped like
// an Ollama-style embeddings call, a circuit breaker around the
// upstream call, and a content-addressed cache in front of it.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/david/tender-finder/internal/obs"
)

// Embedder is the interface the rest of the module depends on — the
// Matcher, Feedback Processor and Similar-Tender Service never see the
// HTTP client directly, only this contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error)
}

// Client calls the embedding model's HTTP endpoint, guarded by a circuit
// breaker so a degraded upstream sheds load instead of piling up
// goroutines on a slow dependency.
type Client struct {
	endpoint  string
	modelID   string
	dimension int
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[[]float32]
	metrics   *obs.Metrics
	log       obs.Logger
}

// Config holds the construction parameters for Client.
type Config struct {
	Endpoint  string
	ModelID   string
	Dimension int
	Timeout   time.Duration
}

// NewClient constructs an embedding client with a name-scoped circuit
// breaker: five consecutive upstream failures trip it open for 30s,
// after which a single probe request is allowed through.
func NewClient(cfg Config, metrics *obs.Metrics, log obs.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{
		endpoint:  cfg.Endpoint,
		modelID:   cfg.ModelID,
		dimension: cfg.Dimension,
		http:      &http.Client{Timeout: cfg.Timeout},
		metrics:   metrics,
		log:       log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "embedding-upstream",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.Inc()
			}
			log.Warn("embedding circuit breaker state change", map[string]interface{}{
				"from": from.String(), "to": to.String(),
			})
		},
	})
	return c
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls the upstream embedding model for a single piece of text,
// L2-normalizing the result so downstream cosine similarity reduces to a
// dot product.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrInputInvalid
	}

	vec, err := c.breaker.Execute(func() ([]float32, error) {
		return c.call(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrUpstreamUnavailable
		}
		return nil, err
	}
	return vec, nil
}

func (c *Client) call(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.modelID, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.EmbeddingUpstreamErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.metrics.EmbeddingUpstreamErrors.Inc()
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrInputInvalid, resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if c.dimension > 0 && len(parsed.Embedding) != c.dimension {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(parsed.Embedding), c.dimension)
	}

	return normalizeVector(parsed.Embedding), nil
}

// EmbedBatch embeds each text independently, collecting a per-index
// error so one bad input doesn't fail the whole batch — grounded on the
// partial-failure shape the Matcher's errgroup fan-out expects.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, t := range texts {
		vecs[i], errs[i] = c.Embed(ctx, t)
	}
	return vecs, errs
}

func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
