package judgment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig holds the judgment provider HTTP settings.
type ClientConfig struct {
	Endpoint       string        `json:"endpoint"`
	AuthToken      string        `json:"auth_token"`
	Model          string        `json:"model"`
	RequestTimeout time.Duration `json:"request_timeout"`
	UserAgent      string        `json:"user_agent"`
}

// HTTPClient calls a completions-style judgment provider over HTTP.
type HTTPClient struct {
	httpClient *http.Client
	config     ClientConfig
}

// NewHTTPClient builds the provider client with sane defaults.
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Quorum/1.0"
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		config: config,
	}
}

type generateRequest struct {
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

type generateResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// GenerateJudgment posts both prompts and returns the provider's raw text.
func (c *HTTPClient) GenerateJudgment(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:        c.config.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal judgment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build judgment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("judgment provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read judgment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("judgment provider status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode judgment response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("judgment provider error: %s", out.Error)
	}
	return out.Output, nil
}
