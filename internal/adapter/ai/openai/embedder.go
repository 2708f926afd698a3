// Package openai implements the domain.Embedder port against the OpenAI
// embeddings API.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

// Embedder implements domain.Embedder using the OpenAI embeddings API.
type Embedder struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs an OpenAI embedder.
func New(cfg config.Config) *Embedder {
	return &Embedder{
		cfg: cfg,
		hc:  &http.Client{Timeout: 60 * time.Second},
	}
}

// EmbedTexts returns one vector per input text. Transient failures
// (429/5xx/network) are retried with exponential backoff.
func (e *Embedder) EmbedTexts(ctx domain.Context, texts []string) (domain.EmbedResult, error) {
	if e.cfg.OpenAIAPIKey == "" || e.cfg.EmbeddingsModel == "" {
		// Do not log secrets; only indicate presence
		slog.Error("OpenAI API key or model missing", slog.String("provider", "openai"), slog.Bool("has_api_key", e.cfg.OpenAIAPIKey != ""), slog.String("model", e.cfg.EmbeddingsModel))
		return domain.EmbedResult{}, fmt.Errorf("%w: OPENAI_API_KEY or EMBEDDINGS_MODEL missing", domain.ErrInvalidArgument)
	}
	if len(texts) == 0 {
		return domain.EmbedResult{}, fmt.Errorf("%w: no texts to embed", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model": e.cfg.EmbeddingsModel,
		"input": texts,
	}
	b, _ := json.Marshal(body)
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	start := time.Now()
	op := func() error {
		attemptStart := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.OpenAIBaseURL+"/embeddings", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+e.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := e.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openai", "embed").Inc()
		observability.AIRequestDuration.WithLabelValues("openai", "embed").Observe(time.Since(attemptStart).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("provider", "openai"), slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: embed status 429", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("ai provider 4xx", slog.String("provider", "openai"), slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("model", e.cfg.EmbeddingsModel), slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("embed status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("ai provider non-2xx", slog.String("provider", "openai"), slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("model", e.cfg.EmbeddingsModel), slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("embed status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error", slog.String("provider", "openai"), slog.String("op", "embed"), slog.Any("error", err))
			return err
		}
		return nil
	}
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := e.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if ctx.Err() != nil {
			return domain.EmbedResult{}, fmt.Errorf("%w: openai embed: %v", domain.ErrProviderTimeout, err)
		}
		return domain.EmbedResult{}, fmt.Errorf("openai api failed: %w", err)
	}
	if len(out.Data) == 0 {
		return domain.EmbedResult{}, errors.New("empty data from OpenAI API")
	}
	res := make([][]float32, len(out.Data))
	for i := range out.Data {
		v := make([]float32, len(out.Data[i].Embedding))
		for j := range out.Data[i].Embedding {
			v[j] = float32(out.Data[i].Embedding[j])
		}
		res[i] = v
	}
	return domain.EmbedResult{
		Embeddings: res,
		TokensUsed: out.Usage.TotalTokens,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx domain.Context, text string) ([]float32, error) {
	res, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Embeddings[0], nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
