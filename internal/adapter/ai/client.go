// Package ai implements the LLM and embeddings client behind the four LLM
// surfaces of the pipeline (structurer, OCR arbitrator, query translator,
// HR analyzer) plus the embedding service.
//
// The client speaks the OpenAI-compatible chat/embeddings wire format and
// retries transient failures with exponential backoff.
package ai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
)

// Client implements domain.AIClient against OpenAI-compatible endpoints:
// chat completions for Complete, the embeddings endpoint for Embed.
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a Client with instrumented transports.
func New(cfg config.Config) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: cfg.LLMTimeout, Transport: transport},
		embedHC: &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLValue `json:"image_url,omitempty"`
}

type imageURLValue struct {
	URL string `json:"url"`
}

// Complete implements domain.AIClient.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if c.cfg.LLMAPIKey == "" {
		return domain.CompletionResult{}, fmt.Errorf("op=ai.complete: %w: LLM_API_KEY missing", domain.ErrInvalidArgument)
	}
	model := req.Model
	if model == "" {
		model = c.cfg.LLMModel
	}

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	if len(req.Images) > 0 {
		parts := []contentPart{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURLValue{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)},
			})
		}
		msgs = append(msgs, chatMessage{Role: "user", Content: parts})
	} else {
		msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	}

	body := map[string]any{
		"model":       model,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"messages":    msgs,
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	start := time.Now()
	op := func() error {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.chatHC.Do(r)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: chat completions", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 500:
			return fmt.Errorf("chat completions status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("chat completions status %d: %s", resp.StatusCode, snippet))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}
	if err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		observability.AIRequestsTotal.WithLabelValues("complete").Inc()
		return domain.CompletionResult{}, c.wrap("complete", err)
	}
	latency := time.Since(start)
	observability.AIRequestsTotal.WithLabelValues("complete").Inc()
	observability.AIRequestDuration.WithLabelValues("complete").Observe(latency.Seconds())
	observability.AITokensTotal.WithLabelValues("complete", "input").Add(float64(out.Usage.PromptTokens))
	observability.AITokensTotal.WithLabelValues("complete", "output").Add(float64(out.Usage.CompletionTokens))

	if len(out.Choices) == 0 {
		return domain.CompletionResult{}, fmt.Errorf("op=ai.complete: %w: empty choices", domain.ErrSchemaInvalid)
	}
	slog.Debug("llm completion",
		slog.String("model", model),
		slog.Int("input_tokens", out.Usage.PromptTokens),
		slog.Int("output_tokens", out.Usage.CompletionTokens),
		slog.Duration("latency", latency))
	return domain.CompletionResult{
		Text:         out.Choices[0].Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		Latency:      latency,
	}, nil
}

// Embed implements domain.AIClient. Callers chunk to domain.EmbedBatchSize;
// oversized batches are rejected here to catch miswired callers.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > domain.EmbedBatchSize {
		return nil, fmt.Errorf("op=ai.embed: %w: batch %d exceeds %d", domain.ErrInvalidArgument, len(texts), domain.EmbedBatchSize)
	}
	body := map[string]any{
		"model":      c.cfg.EmbeddingsModel,
		"input":      texts,
		"dimensions": domain.EmbeddingDim,
	}
	b, _ := json.Marshal(body)

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	start := time.Now()
	op := func() error {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EmbeddingsURL+"/embeddings", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.EmbeddingsAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.embedHC.Do(r)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: embeddings", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 500:
			return fmt.Errorf("embeddings status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("embeddings status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}
	if err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return nil, c.wrap("embed", err)
	}
	observability.AIRequestsTotal.WithLabelValues("embed").Inc()
	observability.AIRequestDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("op=ai.embed: %w: index %d out of range", domain.ErrSchemaInvalid, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) != domain.EmbeddingDim {
			return nil, fmt.Errorf("op=ai.embed: %w: vector %d has dim %d, want %d", domain.ErrSchemaInvalid, i, len(v), domain.EmbeddingDim)
		}
	}
	return vectors, nil
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

func (c *Client) wrap(op string, err error) error {
	switch {
	case strings.Contains(err.Error(), "context deadline exceeded"):
		return fmt.Errorf("op=ai.%s: %w: %v", op, domain.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("op=ai.%s: %w", op, err)
	}
}
