// Package llm forwards prompts to the external text-generation endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// NoResponseText is returned when the endpoint replies without a response
// field.
const NoResponseText = "No response from LLM."

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// Client posts prompts to a single generation URL. Safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a new LLM client. timeout bounds every call.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate sends prompt and returns the generated text. Every failure is a
// *domain.GenerationError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("An unexpected error occurred: %v", err),
			Err:    err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("Error communicating with LLM service: %v", err),
			Err:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("Error communicating with LLM service: %v", err),
			Err:    err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("Error communicating with LLM service: %v", err),
			Err:    err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("LLM service returned an error: %s", body),
			Err:    fmt.Errorf("%w: HTTP %d", domain.ErrUpstream, resp.StatusCode),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.GenerationError{
			Reason: fmt.Sprintf("An unexpected error occurred: %v", err),
			Err:    err,
		}
	}
	if out.Response == nil {
		return NoResponseText, nil
	}
	return *out.Response, nil
}
