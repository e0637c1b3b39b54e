// Package llm implements spec §4.4's LLM fallback: a raw OpenAI-compatible
// chat-completions client, a (rawPayloadHash, field)-keyed cache so
// identical inputs never re-call the provider, a per-roaster token bucket
// plus global daily spend budget, and a circuit breaker around the
// provider call. Grounded on the pattern in
// other_examples-adjacent pack repo jordigilh-kubernaut's pkg/slm client
// (a raw net/http POST to /v1/chat/completions, not a generated SDK).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig configures the HTTP call to an OpenAI-compatible endpoint.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client is a minimal OpenAI-compatible chat-completions caller.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FieldAnswer is the {value, confidence} shape spec §4.4 names for the
// LLM's enrichment output.
type FieldAnswer struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// AskField resolves one field's value from cleaned title+description,
// instructing the model to answer as a single JSON object matching
// FieldAnswer.
func (c *Client) AskField(ctx context.Context, field, title, description string) (FieldAnswer, error) {
	prompt := fmt.Sprintf(
		"Given this coffee product title and description, determine its %s. "+
			"Respond with only a JSON object: {\"value\": string, \"confidence\": number between 0 and 1}.\n\nTitle: %s\nDescription: %s",
		field, title, description,
	)

	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a precise coffee product data extractor."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return FieldAnswer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return FieldAnswer{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FieldAnswer{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FieldAnswer{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return FieldAnswer{}, fmt.Errorf("llm: provider returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return FieldAnswer{}, fmt.Errorf("llm: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return FieldAnswer{}, fmt.Errorf("llm: provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return FieldAnswer{}, fmt.Errorf("llm: empty choices in response")
	}

	var answer FieldAnswer
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &answer); err != nil {
		return FieldAnswer{}, fmt.Errorf("llm: model did not return valid JSON: %w", err)
	}
	return answer, nil
}

// HealthCheck issues a minimal request to confirm the provider is
// reachable, per spec §4.4's healthCheck() contract.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("llm: provider unhealthy, status %d", resp.StatusCode)
	}
	return nil
}
