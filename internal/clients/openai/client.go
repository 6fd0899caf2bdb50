package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/pkg/httpx"
	"github.com/brightfeed/brightfeed-backend/internal/utils"
)

// Client is an OpenAI-compatible API client. Because the embedding provider
// fallback chain is built from multiple instances pointed at different base
// URLs, everything is parameterized through Config rather than read from a
// fixed set of env vars.
type Client interface {
	// Embed returns one vector per input plus the total tokens consumed.
	Embed(ctx context.Context, inputs []string) ([][]float32, int, error)

	// GenerateJSON asks for a structured completion constrained by a JSON
	// schema and returns the decoded object.
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// GenerateText returns a plain text completion.
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Name identifies this provider in fallback-chain logs and results.
	Name() string

	// EmbedModel and MaxInputChars describe the provider for cache keying
	// and input truncation.
	EmbedModel() string
	MaxInputChars() int
}

type Config struct {
	Name          string
	BaseURL       string
	APIKey        string
	ChatModel     string
	EmbedModel    string
	MaxInputChars int
	Timeout       time.Duration
	MaxRetries    int
}

// ConfigFromEnv reads the default provider config. prefix allows a second
// provider (e.g. FALLBACK_OPENAI_*) to coexist.
func ConfigFromEnv(prefix string, log *logger.Logger) Config {
	get := func(key, def string) string { return utils.GetEnv(prefix+key, def, log) }
	return Config{
		Name:          get("PROVIDER_NAME", "openai"),
		BaseURL:       strings.TrimRight(get("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		APIKey:        get("OPENAI_API_KEY", ""),
		ChatModel:     get("OPENAI_MODEL", "gpt-4o-mini"),
		EmbedModel:    get("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		MaxInputChars: utils.GetEnvAsInt(prefix+"OPENAI_MAX_INPUT_CHARS", 24000, log),
		Timeout:       time.Duration(utils.GetEnvAsInt(prefix+"OPENAI_TIMEOUT_SECONDS", 60, log)) * time.Second,
		MaxRetries:    utils.GetEnvAsInt(prefix+"OPENAI_MAX_RETRIES", 3, log),
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("provider %s: missing api key", cfg.Name)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 24000
	}
	return &client{
		log:        log.With("service", "OpenAIClient", "provider", cfg.Name),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Name() string       { return c.cfg.Name }
func (c *client) EmbedModel() string { return c.cfg.EmbedModel }
func (c *client) MaxInputChars() int { return c.cfg.MaxInputChars }

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, int, error) {
	if len(inputs) == 0 {
		return nil, 0, nil
	}
	body := map[string]any{
		"model": c.cfg.EmbedModel,
		"input": inputs,
	}
	var out embeddingResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", body, &out); err != nil {
		return nil, 0, err
	}
	if len(out.Data) != len(inputs) {
		return nil, 0, fmt.Errorf("openai returned %d embeddings for %d inputs", len(out.Data), len(inputs))
	}
	vectors := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, 0, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, out.Usage.TotalTokens, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	body := map[string]any{
		"model": c.cfg.ChatModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	body := map[string]any{
		"model": c.cfg.ChatModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	// Some models wrap JSON in a code fence even under json_schema mode.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return nil, fmt.Errorf("openai structured response decode: %w", err)
	}
	return m, nil
}
